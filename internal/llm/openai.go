package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/scrypster/voxmemo/internal/logging"
)

// OpenAIConfig holds configuration for the Responses API client.
type OpenAIConfig struct {
	APIKey            string
	Model             string        // default: gpt-4o-mini
	BaseURL           string        // default: https://api.openai.com
	Timeout           time.Duration // default: 60s
	RequestsPerMinute int           // default: 20
	Logger            *zap.SugaredLogger
}

// OpenAIClient implements Responder against POST {base}/v1/responses.
type OpenAIClient struct {
	cfg            OpenAIConfig
	client         *http.Client
	circuitBreaker *CircuitBreaker
	limiter        *rate.Limiter
	log            *zap.SugaredLogger
}

// NewOpenAIClient creates a new client with the given configuration.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 20
	}
	log := logging.OrNop(cfg.Logger)

	return &OpenAIClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		circuitBreaker: NewCircuitBreakerWithConfig(CircuitBreakerConfig{
			IsFailure: countsAgainstCircuit,
			Logger:    log,
		}),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), min(cfg.RequestsPerMinute, 3)),
		log:     log,
	}
}

// Create sends req and decodes the response. Every failure to obtain a 2xx
// response matches ErrTransport. While the circuit is open the request is not
// sent and the error also matches ErrCircuitOpen.
func (c *OpenAIClient) Create(ctx context.Context, req *ResponsesRequest) (*ResponsesResponse, error) {
	return c.send(ctx, req, c.circuitBreaker.Execute)
}

// Retry sends req like Create but is never rejected by an open circuit. A
// successful retry closes the circuit.
func (c *OpenAIClient) Retry(ctx context.Context, req *ResponsesRequest) (*ResponsesResponse, error) {
	return c.send(ctx, req, c.circuitBreaker.Force)
}

func (c *OpenAIClient) send(
	ctx context.Context,
	req *ResponsesRequest,
	run func(context.Context, func() (interface{}, error)) (interface{}, error),
) (*ResponsesResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Err: err}
	}

	result, err := run(ctx, func() (interface{}, error) {
		return c.create(ctx, req)
	})
	if err != nil {
		if errors.Is(err, ErrTransport) {
			return nil, err
		}
		return nil, &TransportError{Err: err}
	}
	return result.(*ResponsesResponse), nil
}

func (c *OpenAIClient) create(ctx context.Context, reqBody *ResponsesRequest) (*ResponsesResponse, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/responses", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to read response: %w", err)}
	}
	c.log.Debugw("analysis request complete", "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: apiErrorMessage(body)}
	}

	var respData ResponsesResponse
	if err := json.Unmarshal(body, &respData); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return &respData, nil
}

// GetModel returns the configured model name.
func (c *OpenAIClient) GetModel() string {
	return c.cfg.Model
}

// apiErrorMessage extracts error.message from an API error body.
func apiErrorMessage(body []byte) string {
	var payload struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error == nil {
		return ""
	}
	return payload.Error.Message
}

// countsAgainstCircuit reports whether err indicates the API is unhealthy.
// Client errors such as a bad key or malformed request do not trip the circuit.
func countsAgainstCircuit(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled)
}

// Compile-time assertion.
var _ Responder = (*OpenAIClient)(nil)
