package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTranscription is returned when Analyze is called with no text.
	ErrEmptyTranscription = errors.New("transcription is empty")

	// ErrTransport matches every failure to obtain an HTTP response from the
	// analysis API, including non-2xx statuses.
	ErrTransport = errors.New("analysis transport failed")

	// ErrMissingOutput means the API answered but carried no output text.
	ErrMissingOutput = errors.New("failed to get analysis response")

	// ErrParse means the output text did not match the analysis schema.
	ErrParse = errors.New("failed to parse analysis")
)

// APIError is a non-2xx response from the analysis API. Message holds the
// API's own error message when the body carried one.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("analysis failed: status %d", e.StatusCode)
}

func (e *APIError) Unwrap() error { return ErrTransport }

// TransportError wraps a network-level failure.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "analysis failed: " + e.Err.Error() }

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }
