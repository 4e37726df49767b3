package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(maxFailures int) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreakerWithWindow("library", maxFailures, 30*time.Second, time.Minute, nil)
	cb.now = clock.Now
	return cb, clock
}

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestOpensAfterMaxFailures(t *testing.T) {
	cb, _ := newTestBreaker(2)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(fail, nil), errBoom)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(func() error { called = true; return nil }, nil)
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestFallbackWhileOpen(t *testing.T) {
	cb, _ := newTestBreaker(0)
	require.Error(t, cb.Execute(fail, nil))

	errFallback := errors.New("fallback")
	assert.Equal(t, errFallback, cb.Execute(succeed, func() error { return errFallback }))
}

func TestFailuresOutsideWindowAreForgotten(t *testing.T) {
	cb, clock := newTestBreaker(2)

	require.Error(t, cb.Execute(fail, nil))
	require.Error(t, cb.Execute(fail, nil))
	clock.Advance(2 * time.Minute)
	require.Error(t, cb.Execute(fail, nil))

	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpenProbe(t *testing.T) {
	cb, clock := newTestBreaker(0)
	require.Error(t, cb.Execute(fail, nil))
	require.Equal(t, StateOpen, cb.GetState())

	clock.Advance(31 * time.Second)
	require.Error(t, cb.Execute(fail, nil))
	assert.Equal(t, StateOpen, cb.GetState(), "failed probe reopens")
	assert.ErrorIs(t, cb.Execute(succeed, nil), ErrOpen)

	clock.Advance(31 * time.Second)
	require.NoError(t, cb.Execute(succeed, nil))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestOnlyOneProbeAtATime(t *testing.T) {
	cb, clock := newTestBreaker(0)
	require.Error(t, cb.Execute(fail, nil))
	clock.Advance(31 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- cb.Execute(func() error {
			close(started)
			<-release
			return nil
		}, nil)
	}()
	<-started

	assert.Equal(t, StateHalfOpen, cb.GetState())
	assert.ErrorIs(t, cb.Execute(succeed, nil), ErrOpen)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}

func TestUnrecordedErrorsDoNotCount(t *testing.T) {
	cb, _ := newTestBreaker(0)
	abandoned := func() error { return Unrecorded(context.Canceled) }

	for i := 0; i < 3; i++ {
		err := cb.Execute(abandoned, nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, ErrOpen)
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestUnrecordedProbeFreesSlot(t *testing.T) {
	cb, clock := newTestBreaker(0)
	require.Error(t, cb.Execute(fail, nil))
	clock.Advance(31 * time.Second)

	require.ErrorIs(t, cb.Execute(func() error { return Unrecorded(context.Canceled) }, nil), context.Canceled)
	assert.Equal(t, StateHalfOpen, cb.GetState())

	require.NoError(t, cb.Execute(succeed, nil))
	assert.Equal(t, StateClosed, cb.GetState())
}
