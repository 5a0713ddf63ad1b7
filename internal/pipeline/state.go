// Package pipeline sequences one voice memo from recording through
// transcription and analysis to a saved memory. Transitions are a pure
// function of (state, event); the Controller executes the effects they name
// on a single goroutine and publishes immutable snapshots.
package pipeline

import "fmt"

// State is the stage of the current pipeline run.
type State int

const (
	Idle State = iota
	Recording
	Transcribing
	// Transcribed is reached only when no speech was detected; there is
	// nothing to analyze until the next recording.
	Transcribed
	TranscriptionFailed
	Analyzing
	Analyzed
	AnalysisFailed
	Saved
	Discarded
)

var stateNames = [...]string{
	Idle:                "idle",
	Recording:           "recording",
	Transcribing:        "transcribing",
	Transcribed:         "transcribed",
	TranscriptionFailed: "transcription_failed",
	Analyzing:           "analyzing",
	Analyzed:            "analyzed",
	AnalysisFailed:      "analysis_failed",
	Saved:               "saved",
	Discarded:           "discarded",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("pipeline: unknown state %q", b)
}

// EventKind identifies what happened.
type EventKind int

const (
	// User intents.
	EventStart EventKind = iota
	EventStop
	EventRetry
	EventSave
	EventDiscard

	// Completions.
	EventRecorderFailed
	EventTranscribed
	EventTranscriptionFailed
	EventAnalyzed
	EventAnalysisFailed
	EventPersisted
	EventPersistFailed

	// EventSettle returns Saved and Discarded to Idle.
	EventSettle
)

var eventNames = [...]string{
	EventStart:               "start",
	EventStop:                "stop",
	EventRetry:               "retry",
	EventSave:                "save",
	EventDiscard:             "discard",
	EventRecorderFailed:      "recorder_failed",
	EventTranscribed:         "transcribed",
	EventTranscriptionFailed: "transcription_failed",
	EventAnalyzed:            "analyzed",
	EventAnalysisFailed:      "analysis_failed",
	EventPersisted:           "persisted",
	EventPersistFailed:       "persist_failed",
	EventSettle:              "settle",
}

func (k EventKind) String() string {
	if k >= 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is the input to Transition. Text is the transcription for
// EventTranscribed and is ignored otherwise.
type Event struct {
	Kind EventKind
	Text string
}

// Effect is a side effect the controller must perform after a transition.
type Effect int

const (
	// EffectReset supersedes the current session: its generation is retired,
	// in-flight work is cancelled and its recording is discarded.
	EffectReset Effect = iota
	EffectStartRecorder
	EffectStopRecorder
	EffectTranscribe
	EffectAnalyze
	// EffectReanalyze re-sends the failed analysis request on user request.
	EffectReanalyze
	EffectPersist
	// EffectSettle schedules EventSettle.
	EffectSettle
)

var effectNames = [...]string{
	EffectReset:         "reset",
	EffectStartRecorder: "start_recorder",
	EffectStopRecorder:  "stop_recorder",
	EffectTranscribe:    "transcribe",
	EffectAnalyze:       "analyze",
	EffectReanalyze:     "reanalyze",
	EffectPersist:       "persist",
	EffectSettle:        "settle",
}

func (e Effect) String() string {
	if e >= 0 && int(e) < len(effectNames) {
		return effectNames[e]
	}
	return fmt.Sprintf("effect(%d)", int(e))
}

// Transition returns the next state and the effects to run. ok is false when
// the event does not apply in the current state, in which case the state is
// unchanged and there are no effects.
func Transition(s State, e Event) (next State, effects []Effect, ok bool) {
	switch e.Kind {
	case EventStart:
		if s == Idle {
			return Recording, []Effect{EffectStartRecorder}, true
		}
		// Any other state is superseded by the new recording.
		return Recording, []Effect{EffectReset, EffectStartRecorder}, true

	case EventRecorderFailed:
		if s == Recording {
			return Idle, nil, true
		}

	case EventStop:
		if s == Recording {
			return Transcribing, []Effect{EffectStopRecorder, EffectTranscribe}, true
		}

	case EventTranscribed:
		if s == Transcribing {
			if e.Text == "" {
				return Transcribed, nil, true
			}
			return Analyzing, []Effect{EffectAnalyze}, true
		}

	case EventTranscriptionFailed:
		if s == Transcribing {
			return TranscriptionFailed, nil, true
		}

	case EventAnalyzed:
		if s == Analyzing {
			return Analyzed, nil, true
		}

	case EventAnalysisFailed:
		if s == Analyzing {
			return AnalysisFailed, nil, true
		}

	case EventRetry:
		if s == AnalysisFailed {
			return Analyzing, []Effect{EffectReanalyze}, true
		}

	case EventSave:
		if s == Analyzed {
			return Saved, []Effect{EffectPersist}, true
		}

	case EventPersisted:
		if s == Saved {
			return Saved, []Effect{EffectSettle}, true
		}

	case EventPersistFailed:
		if s == Saved {
			return Analyzed, nil, true
		}

	case EventDiscard:
		switch s {
		case Idle, Saved, Discarded:
		default:
			return Discarded, []Effect{EffectReset, EffectSettle}, true
		}

	case EventSettle:
		switch s {
		case Saved:
			return Idle, []Effect{EffectReset}, true
		case Discarded:
			return Idle, nil, true
		}
	}

	return s, nil, false
}
