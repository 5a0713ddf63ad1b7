package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_TripsAndRecovers(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		MaxFailures: 2,
		Timeout:     50 * time.Millisecond,
	})
	fail := func() (interface{}, error) { return nil, errors.New("down") }
	ok := func() (interface{}, error) { return "up", nil }

	for i := 0; i < 2; i++ {
		_, err := cb.Execute(context.Background(), fail)
		require.Error(t, err)
	}
	assert.Equal(t, "open", cb.State())

	_, err := cb.Execute(context.Background(), ok)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	time.Sleep(80 * time.Millisecond)
	res, err := cb.Execute(context.Background(), ok)
	require.NoError(t, err)
	assert.Equal(t, "up", res)
	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	ignored := errors.New("ignored")
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		MaxFailures: 1,
		IsFailure:   func(err error) bool { return !errors.Is(err, ignored) },
	})

	_, err := cb.Execute(context.Background(), func() (interface{}, error) { return nil, ignored })
	assert.ErrorIs(t, err, ignored)
	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb := NewCircuitBreaker(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := cb.Execute(ctx, func() (interface{}, error) {
		called = true
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestCircuitBreaker_ForceRunsWhileOpen(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Hour})
	_, err := cb.Execute(context.Background(), func() (interface{}, error) { return nil, errors.New("down") })
	require.Error(t, err)
	require.Equal(t, "open", cb.State())

	calls := 0
	_, err = cb.Force(context.Background(), func() (interface{}, error) {
		calls++
		return nil, errors.New("still down")
	})
	assert.EqualError(t, err, "still down")
	assert.Equal(t, "open", cb.State(), "a failed forced call leaves the circuit open")

	res, err := cb.Force(context.Background(), func() (interface{}, error) {
		calls++
		return "up", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "up", res)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreaker_ForceWhileClosedCounts(t *testing.T) {
	cb := NewCircuitBreakerWithConfig(CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Hour})

	_, err := cb.Force(context.Background(), func() (interface{}, error) { return nil, errors.New("down") })
	require.Error(t, err)
	assert.Equal(t, "open", cb.State())
}
