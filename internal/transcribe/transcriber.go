// Package transcribe turns a finished recording into text.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/voxmemo/internal/logging"
	"github.com/scrypster/voxmemo/pkg/types"
)

// ErrUnavailable indicates speech recognition cannot run at all, for example
// because no credential or no supported language is configured.
var ErrUnavailable = errors.New("speech recognition is not available")

// Recognizer produces the final text for one audio file. An empty string with
// a nil error means no speech was detected.
type Recognizer interface {
	Recognize(ctx context.Context, path string) (string, error)
}

// Transcriber runs one recognition per recording and reports the outcome as a
// types.Transcription. It never retries.
type Transcriber struct {
	recognizer Recognizer
	timeout    time.Duration
	log        *zap.SugaredLogger
	inProgress atomic.Bool
}

// New returns a Transcriber. A nil recognizer makes every call fail with
// ErrUnavailable; timeout <= 0 disables the per-call deadline.
func New(recognizer Recognizer, timeout time.Duration, logger *zap.SugaredLogger) *Transcriber {
	return &Transcriber{
		recognizer: recognizer,
		timeout:    timeout,
		log:        logging.OrNop(logger),
	}
}

// InProgress reports whether a recognition call is running.
func (t *Transcriber) InProgress() bool {
	return t.inProgress.Load()
}

// Transcribe recognizes the recording at path. Empty text is success.
func (t *Transcriber) Transcribe(ctx context.Context, path string) types.Transcription {
	t.inProgress.Store(true)
	defer t.inProgress.Store(false)

	if t.recognizer == nil {
		return failure(ErrUnavailable)
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := t.recognizer.Recognize(ctx, path)
	if err != nil {
		t.log.Warnw("transcription failed", "path", path, "error", err, "duration", time.Since(start))
		return failure(err)
	}

	text = strings.TrimSpace(text)
	t.log.Infow("transcription complete",
		"path", path,
		"chars", len(text),
		"no_speech", text == "",
		"duration", time.Since(start),
	)
	return types.Transcription{Text: text, Success: true}
}

func failure(err error) types.Transcription {
	if errors.Is(err, ErrUnavailable) {
		return types.Transcription{Error: capitalize(err.Error())}
	}
	return types.Transcription{Error: fmt.Sprintf("transcription failed: %v", err)}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
