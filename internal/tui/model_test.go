package tui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/voxmemo/internal/pipeline"
	"github.com/scrypster/voxmemo/internal/storage"
	"github.com/scrypster/voxmemo/pkg/types"
)

type fakeController struct {
	mu           sync.Mutex
	calls        []string
	deleted      []string
	deleteErr    error
	ch           chan pipeline.Snapshot
	unsubscribed bool
}

func newFakeController() *fakeController {
	return &fakeController{ch: make(chan pipeline.Snapshot, 1)}
}

func (f *fakeController) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeController) Toggle()  { f.record("toggle") }
func (f *fakeController) Retry()   { f.record("retry") }
func (f *fakeController) Save()    { f.record("save") }
func (f *fakeController) Discard() { f.record("discard") }

func (f *fakeController) DeleteMemory(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return f.deleteErr
}

func (f *fakeController) Subscribe() (<-chan pipeline.Snapshot, func()) {
	return f.ch, func() { f.unsubscribed = true }
}

func key(s string) tea.KeyMsg {
	switch s {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func withSnapshot(t *testing.T, m Model, snap pipeline.Snapshot) Model {
	t.Helper()
	updated, cmd := m.Update(SnapshotMsg{Snapshot: snap})
	require.NotNil(t, cmd, "should keep listening for snapshots")
	return updated.(Model)
}

func press(m Model, k string) (Model, tea.Cmd) {
	updated, cmd := m.Update(key(k))
	return updated.(Model), cmd
}

func memories(titles ...string) []types.Memory {
	out := make([]types.Memory, len(titles))
	for i, title := range titles {
		out[i] = types.Memory{ID: "id-" + title, Title: title, Category: "Ideas", CreatedAt: time.Now()}
	}
	return out
}

func TestInit_ReadsSnapshotFeed(t *testing.T) {
	ctl := newFakeController()
	m := New(context.Background(), ctl)

	ctl.ch <- pipeline.Snapshot{State: pipeline.Recording}
	msg := m.Init()()
	snap, ok := msg.(SnapshotMsg)
	require.True(t, ok)
	assert.Equal(t, pipeline.Recording, snap.Snapshot.State)

	close(ctl.ch)
	assert.IsType(t, FeedClosedMsg{}, m.Init()())
}

func TestKeys_DriveController(t *testing.T) {
	ctl := newFakeController()
	m := New(context.Background(), ctl)

	m, _ = press(m, " ")
	m, _ = press(m, "d")
	// Retry and save are only sent when the snapshot allows them.
	m, _ = press(m, "r")
	m, _ = press(m, "s")
	assert.Equal(t, []string{"toggle", "discard"}, ctl.calls)

	m = withSnapshot(t, m, pipeline.Snapshot{State: pipeline.AnalysisFailed})
	m, _ = press(m, "r")
	m = withSnapshot(t, m, pipeline.Snapshot{State: pipeline.Analyzed, Analysis: &types.Analysis{Title: "t"}})
	_, _ = press(m, "s")
	assert.Equal(t, []string{"toggle", "discard", "retry", "save"}, ctl.calls)
}

func TestKeys_Quit(t *testing.T) {
	for _, k := range []string{"q", "ctrl+c"} {
		ctl := newFakeController()
		m := New(context.Background(), ctl)
		_, cmd := press(m, k)
		require.NotNil(t, cmd)
		assert.IsType(t, tea.QuitMsg{}, cmd())
		assert.True(t, ctl.unsubscribed)
	}
}

func TestSelection_MovesAndClamps(t *testing.T) {
	m := New(context.Background(), newFakeController())
	m = withSnapshot(t, m, pipeline.Snapshot{Memories: memories("a", "b", "c")})

	m, _ = press(m, "k")
	assert.Equal(t, 0, m.selected)
	for i := 0; i < 5; i++ {
		m, _ = press(m, "j")
	}
	assert.Equal(t, 2, m.selected)

	m = withSnapshot(t, m, pipeline.Snapshot{Memories: memories("a")})
	assert.Equal(t, 0, m.selected)
}

func TestExpand_ShowsSelectedMemory(t *testing.T) {
	m := New(context.Background(), newFakeController())
	mems := memories("a", "b")
	mems[1].Transcription = "remember the garden hose"
	mems[1].ActionItems = []string{"Buy hose"}
	m = withSnapshot(t, m, pipeline.Snapshot{Memories: mems})

	m, _ = press(m, "j")
	assert.NotContains(t, m.View(), "garden hose")

	m, _ = press(m, "enter")
	view := m.View()
	assert.Contains(t, view, "remember the garden hose")
	assert.Contains(t, view, "Buy hose")

	m, _ = press(m, "k")
	assert.False(t, m.expanded, "moving the selection collapses the detail")
}

func TestDelete_SelectedMemory(t *testing.T) {
	ctl := newFakeController()
	m := New(context.Background(), ctl)
	m = withSnapshot(t, m, pipeline.Snapshot{Memories: memories("a", "b")})

	m, _ = press(m, "j")
	m, cmd := press(m, "x")
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, DeleteResultMsg{ID: "id-b"}, msg)
	assert.Equal(t, []string{"id-b"}, ctl.deleted)

	updated, _ := m.Update(msg)
	assert.Equal(t, "Memory deleted", updated.(Model).notice)

	ctl.deleteErr = storage.ErrNotFound
	updated, _ = updated.Update(DeleteResultMsg{ID: "id-b", Err: ctl.deleteErr})
	assert.Equal(t, "Memory was already deleted", updated.(Model).notice)

	updated, _ = updated.Update(ClearNoticeMsg{})
	assert.Empty(t, updated.(Model).notice)
}

func TestDelete_NothingSelected(t *testing.T) {
	m := New(context.Background(), newFakeController())
	_, cmd := press(m, "x")
	assert.Nil(t, cmd)
}

func TestView_Analysis(t *testing.T) {
	m := New(context.Background(), newFakeController())
	m.width = 80
	m = withSnapshot(t, m, pipeline.Snapshot{
		State:         pipeline.Analyzed,
		Transcription: types.Transcription{Text: "Buy milk tomorrow", Success: true},
		Analysis: &types.Analysis{
			Title:       "Milk Run",
			Category:    "Shopping",
			ActionItems: []string{"Buy milk"},
			Mood:        "neutral",
		},
		Memories: memories("Older"),
	})

	view := m.View()
	for _, want := range []string{"VOXMEMO", "Buy milk tomorrow", "Milk Run", "Shopping", "Buy milk", "Older", "Save"} {
		assert.Contains(t, view, want)
	}
}

func TestView_ErrorAndNoSpeech(t *testing.T) {
	m := New(context.Background(), newFakeController())
	m = withSnapshot(t, m, pipeline.Snapshot{
		State:     pipeline.AnalysisFailed,
		ErrorKind: pipeline.ErrorAnalysis,
		Error:     "Invalid API key",
	})
	view := m.View()
	assert.Contains(t, view, "Analysis error")
	assert.Contains(t, view, "Invalid API key")
	assert.Contains(t, view, "Retry")

	m = withSnapshot(t, m, pipeline.Snapshot{
		State:         pipeline.Transcribed,
		Transcription: types.Transcription{Success: true},
	})
	assert.Contains(t, m.View(), "No speech detected.")
}

func TestWaveform(t *testing.T) {
	assert.Equal(t, "▁█▅", Waveform([]float64{0, 1, 0.6}, 10))
	assert.Equal(t, "█▁", Waveform([]float64{0, 1, 0}, 2), "keeps the newest samples")
	assert.Equal(t, "▁█", Waveform([]float64{-1, 2}, 5), "clamps out of range values")
	assert.Empty(t, Waveform([]float64{0.5}, 0))
	assert.Equal(t, 50, len([]rune(Waveform(make([]float64, 100), 50))))
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "00:00", formatElapsed(0))
	assert.Equal(t, "01:05", formatElapsed(65*time.Second+400*time.Millisecond))
}

func TestWrapText(t *testing.T) {
	lines := wrapText("one two three four", 9)
	assert.Equal(t, []string{"one two", "three", "four"}, lines)
	assert.Equal(t, "one two three four", strings.Join(wrapText("one two three four", 0), " "))
}

var _ Controller = (*fakeController)(nil)
