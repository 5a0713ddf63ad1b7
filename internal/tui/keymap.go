package tui

// Key bindings handled in handleKey.
const (
	KeyQuit    = "q"
	KeyCtrlC   = "ctrl+c"
	KeySpace   = " "
	KeyRetry   = "r"
	KeySave    = "s"
	KeyDiscard = "d"
	KeyDown    = "j"
	KeyUp      = "k"
	KeyDelete  = "x"
	KeyExpand  = "enter"
)
