// Package tui renders the voice memo pipeline in the terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/scrypster/voxmemo/internal/pipeline"
	"github.com/scrypster/voxmemo/internal/storage"
	"github.com/scrypster/voxmemo/pkg/types"
)

// Controller is the part of the pipeline controller the TUI drives.
type Controller interface {
	Toggle()
	Retry()
	Save()
	Discard()
	DeleteMemory(ctx context.Context, id string) error
	Subscribe() (<-chan pipeline.Snapshot, func())
}

var waveLevels = []rune("▁▂▃▄▅▆▇█")

// Model is the root bubbletea model.
type Model struct {
	ctx         context.Context
	ctl         Controller
	snapshots   <-chan pipeline.Snapshot
	unsubscribe func()

	snap     pipeline.Snapshot
	selected int
	expanded bool
	notice   string
	closed   bool

	width  int
	height int
}

// New subscribes to ctl and returns the initial model. ctx bounds store
// calls made on behalf of key presses.
func New(ctx context.Context, ctl Controller) Model {
	ch, cancel := ctl.Subscribe()
	return Model{
		ctx:         ctx,
		ctl:         ctl,
		snapshots:   ch,
		unsubscribe: cancel,
		snap:        pipeline.Snapshot{State: pipeline.Idle},
	}
}

// Init starts listening for snapshots.
func (m Model) Init() tea.Cmd {
	return waitForSnapshot(m.snapshots)
}

// waitForSnapshot reads the next snapshot from the controller feed.
func waitForSnapshot(ch <-chan pipeline.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return FeedClosedMsg{}
		}
		return SnapshotMsg{Snapshot: snap}
	}
}

func deleteCmd(ctx context.Context, ctl Controller, id string) tea.Cmd {
	return func() tea.Msg {
		return DeleteResultMsg{ID: id, Err: ctl.DeleteMemory(ctx, id)}
	}
}

func clearNoticeCmd() tea.Cmd {
	return tea.Tick(4*time.Second, func(time.Time) tea.Msg {
		return ClearNoticeMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case SnapshotMsg:
		m.snap = msg.Snapshot
		m.clampSelection()
		return m, waitForSnapshot(m.snapshots)

	case FeedClosedMsg:
		m.closed = true
		return m, tea.Quit

	case DeleteResultMsg:
		switch {
		case msg.Err == nil:
			m.notice = "Memory deleted"
		case errors.Is(msg.Err, storage.ErrNotFound):
			m.notice = "Memory was already deleted"
		default:
			m.notice = fmt.Sprintf("Delete failed: %v", msg.Err)
		}
		return m, clearNoticeCmd()

	case ClearNoticeMsg:
		m.notice = ""
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyQuit, KeyCtrlC:
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
		return m, tea.Quit

	case KeySpace:
		m.ctl.Toggle()

	case KeyRetry:
		if m.snap.CanRetry() {
			m.ctl.Retry()
		}

	case KeySave:
		if m.snap.CanSave() {
			m.ctl.Save()
		}

	case KeyDiscard:
		m.ctl.Discard()

	case KeyDown:
		if m.selected < len(m.snap.Memories)-1 {
			m.selected++
			m.expanded = false
		}

	case KeyUp:
		if m.selected > 0 {
			m.selected--
			m.expanded = false
		}

	case KeyExpand:
		m.expanded = !m.expanded && len(m.snap.Memories) > 0

	case KeyDelete:
		if m.selected < len(m.snap.Memories) {
			return m, deleteCmd(m.ctx, m.ctl, m.snap.Memories[m.selected].ID)
		}
	}

	return m, nil
}

func (m *Model) clampSelection() {
	if m.selected >= len(m.snap.Memories) {
		m.selected = max(0, len(m.snap.Memories)-1)
	}
}

// View renders the whole screen.
func (m Model) View() string {
	width := m.width
	if width == 0 {
		width = 80
	}

	sections := []string{
		m.renderHeader(),
		DividerStyle.Render(strings.Repeat("─", width)),
	}
	if body := m.renderSession(width); body != "" {
		sections = append(sections, body)
	}
	if m.snap.Error != "" {
		sections = append(sections, ErrorStyle.Render(errorLabel(m.snap.ErrorKind)+": ")+ErrorTextStyle.Render(m.snap.Error))
	}
	sections = append(sections,
		DividerStyle.Render(strings.Repeat("─", width)),
		m.renderMemories(width),
	)
	if m.notice != "" {
		sections = append(sections, DimStyle.Render(m.notice))
	}
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := TitleStyle.Render("VOXMEMO")
	if m.snap.State == pipeline.Recording {
		return title + "  " + RecordingDotStyle.Render("● REC") + " " + DimStyle.Render(formatElapsed(m.snap.Elapsed))
	}
	return title + "  " + StateStyle.Render(strings.ReplaceAll(m.snap.State.String(), "_", " "))
}

func (m Model) renderSession(width int) string {
	s := m.snap
	var lines []string

	switch s.State {
	case pipeline.Recording:
		lines = append(lines, WaveStyle.Render(Waveform(s.Samples, width)))
	case pipeline.Transcribing:
		lines = append(lines, BusyStyle.Render("⟳ Transcribing..."))
	case pipeline.Transcribed:
		if s.NoSpeech() {
			lines = append(lines, DimStyle.Render("No speech detected."))
		}
	}

	if s.Transcription.Text != "" {
		lines = append(lines, SectionTitleStyle.Render("Transcription"))
		lines = append(lines, wrapText(s.Transcription.Text, width)...)
	}

	if s.Analyzing {
		lines = append(lines, BusyStyle.Render("⟳ Analyzing..."))
	}
	if s.Analysis != nil {
		lines = append(lines, renderAnalysis(s, width))
	}

	return strings.Join(lines, "\n")
}

func renderAnalysis(s pipeline.Snapshot, width int) string {
	a := s.Analysis
	rows := []string{
		SectionTitleStyle.Render(a.Title),
		LabelStyle.Render("Category: ") + a.Category,
		LabelStyle.Render("Mood: ") + a.Mood,
	}
	if len(a.ActionItems) > 0 {
		rows = append(rows, LabelStyle.Render("Action items:"))
		for _, item := range a.ActionItems {
			rows = append(rows, "  • "+item)
		}
	}
	if s.State == pipeline.Saved {
		rows = append(rows, DimStyle.Render("Saving..."))
	}
	return CardStyle.Width(max(20, width-4)).Render(strings.Join(rows, "\n"))
}

func (m Model) renderMemories(width int) string {
	lines := []string{SectionTitleStyle.Render(fmt.Sprintf("Memories (%d)", len(m.snap.Memories)))}
	if m.snap.LibraryError != "" {
		lines = append(lines, ErrorTextStyle.Render(m.snap.LibraryError))
	}
	if len(m.snap.Memories) == 0 {
		lines = append(lines, DimStyle.Render("Nothing saved yet."))
		return strings.Join(lines, "\n")
	}

	for i, mem := range m.snap.Memories {
		row := fmt.Sprintf("%s  %-10s %s", mem.CreatedAt.Local().Format("Jan 02 15:04"), mem.Category, mem.Title)
		row = truncateToWidth(row, width-2)
		if i == m.selected {
			lines = append(lines, SelectedStyle.Render("▸ "+row))
			if m.expanded {
				lines = append(lines, renderMemoryDetail(mem, width)...)
			}
		} else {
			lines = append(lines, "  "+row)
		}
	}
	return strings.Join(lines, "\n")
}

func renderMemoryDetail(mem types.Memory, width int) []string {
	var lines []string
	for _, l := range wrapText(mem.Transcription, width-4) {
		lines = append(lines, "    "+DimStyle.Render(l))
	}
	lines = append(lines, "    "+LabelStyle.Render("Mood: ")+mem.Mood)
	for _, item := range mem.ActionItems {
		lines = append(lines, "    • "+item)
	}
	return lines
}

func (m Model) renderFooter() string {
	var parts []string
	if m.snap.State == pipeline.Recording {
		parts = append(parts, footerKey("Space", "Stop"))
	} else {
		parts = append(parts, footerKey("Space", "Record"))
	}
	if m.snap.CanRetry() {
		parts = append(parts, footerKey("r", "Retry"))
	}
	if m.snap.CanSave() {
		parts = append(parts, footerKey("s", "Save"))
	}
	parts = append(parts,
		footerKey("d", "Discard"),
		footerKey("j/k", "Nav"),
		footerKey("Enter", "Details"),
		footerKey("x", "Delete"),
		footerKey("q", "Quit"),
	)
	return strings.Join(parts, "  ")
}

func footerKey(key, desc string) string {
	return FooterKeyStyle.Render(key) + FooterDescStyle.Render(" "+desc)
}

func errorLabel(kind pipeline.ErrorKind) string {
	switch kind {
	case pipeline.ErrorDevice:
		return "Microphone error"
	case pipeline.ErrorTranscription:
		return "Transcription error"
	case pipeline.ErrorAnalysis:
		return "Analysis error"
	case pipeline.ErrorStorage:
		return "Storage error"
	default:
		return "Error"
	}
}

// Waveform renders the newest samples that fit in width, one bar per
// sample. Samples are amplitudes in [0, 1].
func Waveform(samples []float64, width int) string {
	if width <= 0 {
		return ""
	}
	if len(samples) > width {
		samples = samples[len(samples)-width:]
	}
	var b strings.Builder
	top := len(waveLevels) - 1
	for _, v := range samples {
		v = math.Max(0, math.Min(1, v))
		b.WriteRune(waveLevels[int(math.Round(v*float64(top)))])
	}
	return b.String()
}

func formatElapsed(d time.Duration) string {
	d = d.Truncate(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func truncateToWidth(s string, width int) string {
	if width <= 1 || lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	if len(runes) > width-1 {
		return string(runes[:width-1]) + "…"
	}
	return s
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		lines = append(lines, current)
	}
	return lines
}
