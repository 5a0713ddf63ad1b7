package pipeline

import (
	"time"

	"github.com/scrypster/voxmemo/pkg/types"
)

// ErrorKind classifies a user-visible session error.
type ErrorKind string

const (
	ErrorNone          ErrorKind = ""
	ErrorDevice        ErrorKind = "device"
	ErrorTranscription ErrorKind = "transcription"
	ErrorAnalysis      ErrorKind = "analysis"
	ErrorStorage       ErrorKind = "storage"
)

// Snapshot is an immutable copy of the controller's view state. Slices and
// pointers are never shared with the controller.
type Snapshot struct {
	State      State         `json:"state"`
	Generation uint64        `json:"generation"`
	Elapsed    time.Duration `json:"elapsed"`
	Samples    []float64     `json:"samples"`

	RecordingPath string              `json:"recording_path,omitempty"`
	Transcribing  bool                `json:"transcribing"`
	Transcription types.Transcription `json:"transcription"`
	Analyzing     bool                `json:"analyzing"`
	Analysis      *types.Analysis     `json:"analysis,omitempty"`

	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`

	Memories []types.Memory `json:"memories"`
	// LibraryError reports the last failed list or delete of saved memories.
	LibraryError string `json:"library_error,omitempty"`
}

// NoSpeech reports a finished transcription with no text.
func (s Snapshot) NoSpeech() bool {
	return s.State == Transcribed && s.Transcription.NoSpeech()
}

// CanSave reports whether a save intent would be accepted.
func (s Snapshot) CanSave() bool { return s.State == Analyzed }

// CanRetry reports whether a retry intent would be accepted.
func (s Snapshot) CanRetry() bool { return s.State == AnalysisFailed }

func cloneAnalysis(a *types.Analysis) *types.Analysis {
	if a == nil {
		return nil
	}
	c := *a
	c.ActionItems = append([]string{}, a.ActionItems...)
	return &c
}

func cloneMemories(in []types.Memory) []types.Memory {
	out := make([]types.Memory, len(in))
	for i, m := range in {
		m.ActionItems = append([]string{}, m.ActionItems...)
		out[i] = m
	}
	return out
}
