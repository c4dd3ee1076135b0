package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(t *testing.T) *CircuitBreaker {
	t.Helper()
	return NewCircuitBreaker("test", Config{
		MaxRequests:      1,
		Timeout:          20 * time.Millisecond,
		FailureThreshold: 2,
		SuccessThreshold: 1,
	})
}

func TestExecutePassesThroughWhenClosed(t *testing.T) {
	cb := newTestBreaker(t)

	err := cb.Execute(context.Background(), func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb := newTestBreaker(t)
	failure := errors.New("downstream unavailable")

	for i := 0; i < 2; i++ {
		err := cb.Execute(context.Background(), func() error { return failure })
		assert.ErrorIs(t, err, failure)
	}

	assert.Equal(t, StateOpen, cb.State())

	err := cb.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestHalfOpenRecoversAfterTimeout(t *testing.T) {
	cb := newTestBreaker(t)
	failure := errors.New("downstream unavailable")

	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func() error { return failure })
	}
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	err := cb.Execute(context.Background(), func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := newTestBreaker(t)
	failure := errors.New("still broken")

	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func() error { return failure })
	}

	time.Sleep(25 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	err := cb.Execute(context.Background(), func() error { return failure })
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, StateOpen, cb.State())
}

func TestStateChangeCallback(t *testing.T) {
	var transitions []string

	cb := NewCircuitBreaker("callback", Config{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Hour,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	cb.Execute(context.Background(), func() error { return errors.New("boom") })

	require.Len(t, transitions, 1)
	assert.Equal(t, "closed->open", transitions[0])
}
