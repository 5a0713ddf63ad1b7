package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/voxmemo/internal/logging"
	"github.com/scrypster/voxmemo/pkg/types"
)

// Analyzer turns transcription text into a types.Analysis.
type Analyzer struct {
	client  Responder
	timeout time.Duration
	log     *zap.SugaredLogger
}

// NewAnalyzer returns an Analyzer using client. timeout <= 0 leaves the
// deadline to the caller's context.
func NewAnalyzer(client Responder, timeout time.Duration, logger *zap.SugaredLogger) *Analyzer {
	return &Analyzer{client: client, timeout: timeout, log: logging.OrNop(logger)}
}

// Analyze sends one analysis request. Failures are distinct: errors matching
// ErrTransport (with *APIError for HTTP statuses), ErrMissingOutput and
// ErrParse. There is no automatic retry.
func (a *Analyzer) Analyze(ctx context.Context, text string) (*types.Analysis, error) {
	return a.analyze(ctx, text, a.client.Create)
}

// Retry re-sends an equivalent request after a failed Analyze. Unlike
// Analyze it goes out even while the client's circuit is open.
func (a *Analyzer) Retry(ctx context.Context, text string) (*types.Analysis, error) {
	return a.analyze(ctx, text, a.client.Retry)
}

func (a *Analyzer) analyze(
	ctx context.Context,
	text string,
	send func(context.Context, *ResponsesRequest) (*ResponsesResponse, error),
) (*types.Analysis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyTranscription
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	req := NewAnalysisRequest(a.client.GetModel(), text)
	start := time.Now()
	resp, err := send(ctx, req)
	if err != nil {
		a.log.Warnw("analysis request failed", "error", err, "duration", time.Since(start))
		if errors.Is(err, ErrTransport) {
			return nil, err
		}
		return nil, &TransportError{Err: err}
	}

	out, ok := resp.OutputText()
	if !ok {
		a.log.Warnw("analysis response carried no output text", "response_id", resp.ID)
		return nil, ErrMissingOutput
	}

	analysis, err := ParseAnalysis(out)
	if err != nil {
		a.log.Warnw("analysis output did not match schema", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	a.log.Infow("analysis complete",
		"category", analysis.Category,
		"action_items", len(analysis.ActionItems),
		"duration", time.Since(start),
	)
	return analysis, nil
}
