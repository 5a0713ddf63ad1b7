package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/scrypster/voxmemo/internal/logging"
)

// ErrCircuitOpen is returned when the breaker rejects a call without
// attempting it.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig holds the configuration for the circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures required to trip the circuit.
	// Default: 3
	MaxFailures uint32

	// Timeout is how long the circuit stays open before allowing a probe.
	// Default: 30 seconds
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of probes that must succeed to close
	// the circuit again.
	// Default: 1
	HalfOpenMaxSuccesses uint32

	// IsFailure decides which errors count against the circuit. Nil counts
	// every error.
	IsFailure func(error) bool

	Logger *zap.SugaredLogger
}

// CircuitBreaker wraps gobreaker around calls to the analysis API. Calls made
// through Execute are rejected while the circuit is open; Force always runs.
type CircuitBreaker struct {
	settings gobreaker.Settings
	log      *zap.SugaredLogger

	mu      sync.RWMutex
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreaker creates a breaker with default settings.
func NewCircuitBreaker(logger *zap.SugaredLogger) *CircuitBreaker {
	return NewCircuitBreakerWithConfig(CircuitBreakerConfig{Logger: logger})
}

// NewCircuitBreakerWithConfig creates a breaker, filling zero fields with
// defaults.
func NewCircuitBreakerWithConfig(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures == 0 {
		config.MaxFailures = 3
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.HalfOpenMaxSuccesses == 0 {
		config.HalfOpenMaxSuccesses = 1
	}
	log := logging.OrNop(config.Logger)

	settings := gobreaker.Settings{
		Name:        "analysis",
		MaxRequests: config.HalfOpenMaxSuccesses,
		Interval:    0, // Don't clear counts periodically
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnw("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	if config.IsFailure != nil {
		settings.IsSuccessful = func(err error) bool {
			return err == nil || !config.IsFailure(err)
		}
	}

	return &CircuitBreaker{
		settings: settings,
		log:      log,
		breaker:  gobreaker.NewCircuitBreaker(settings),
	}
}

func (cb *CircuitBreaker) current() *gobreaker.CircuitBreaker {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.breaker
}

// Execute runs fn through the breaker. An open circuit returns ErrCircuitOpen
// without calling fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := cb.current().Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return result, err
}

// Force runs fn even when the circuit is open or half-open. A success closes
// the circuit; a failure leaves its state unchanged. With a closed circuit it
// behaves like Execute.
func (cb *CircuitBreaker) Force(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cb.current().State() == gobreaker.StateClosed {
		return cb.Execute(ctx, fn)
	}

	result, err := fn()
	if err == nil {
		cb.Reset()
	}
	return result, err
}

// Reset closes the circuit and clears its counts.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.breaker.State()
	cb.breaker = gobreaker.NewCircuitBreaker(cb.settings)
	cb.mu.Unlock()
	if from != gobreaker.StateClosed {
		cb.log.Infow("circuit breaker reset", "breaker", cb.settings.Name, "from", from.String())
	}
}

// State returns "closed", "open" or "half-open".
func (cb *CircuitBreaker) State() string {
	switch cb.current().State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
