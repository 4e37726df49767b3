// Package circuitbreaker stops calling an upstream that keeps failing.
package circuitbreaker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrOpen = errors.New("circuit breaker is open")

type unrecordedError struct{ err error }

func (e unrecordedError) Error() string { return e.err.Error() }
func (e unrecordedError) Unwrap() error { return e.err }

// Unrecorded marks err as saying nothing about the upstream's health, such
// as a call abandoned by its own caller. Execute returns err unwrapped and
// counts it neither as a failure nor as a success.
func Unrecorded(err error) error {
	return unrecordedError{err: err}
}

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// CircuitBreaker opens after more than maxFailures failures inside window and
// lets a single probe through once timeout has passed. The probe's outcome
// closes or reopens it.
type CircuitBreaker struct {
	name        string
	maxFailures int
	window      time.Duration
	timeout     time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu              sync.Mutex
	failures        []time.Time
	lastFailureTime time.Time
	state           State
	probing         bool
}

func NewCircuitBreaker(name string, maxFailures int, timeout time.Duration, logger *slog.Logger) *CircuitBreaker {
	return NewCircuitBreakerWithWindow(name, maxFailures, timeout, 60*time.Second, logger)
}

func NewCircuitBreakerWithWindow(name string, maxFailures int, timeout, window time.Duration, logger *slog.Logger) *CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreaker{
		name:        name,
		maxFailures: maxFailures,
		window:      window,
		timeout:     timeout,
		logger:      logger,
		now:         time.Now,
		state:       StateClosed,
	}
}

// Execute runs fn unless the breaker is open, in which case fallback runs
// instead (or ErrOpen is returned when fallback is nil). The lock is not held
// while fn runs.
func (cb *CircuitBreaker) Execute(fn func() error, fallback func() error) error {
	if !cb.allow() {
		if fallback != nil {
			return fallback()
		}
		return fmt.Errorf("%s: %w", cb.name, ErrOpen)
	}

	err := fn()
	var skip unrecordedError
	if errors.As(err, &skip) {
		cb.release()
		return skip.err
	}
	cb.record(err)
	return err
}

// release frees a half-open probe slot without changing state.
func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) < cb.timeout {
			return false
		}
		cb.setState(StateHalfOpen)
		cb.failures = cb.failures[:0]
		cb.probing = true
		return true
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	}
	return true
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	wasProbe := cb.state == StateHalfOpen
	cb.probing = false

	if err != nil {
		cb.lastFailureTime = now
		cb.failures = append(cb.failures, now)
		cb.cleanOldFailures(now)
		if wasProbe || len(cb.failures) > cb.maxFailures {
			cb.setState(StateOpen)
		}
		return
	}

	cb.cleanOldFailures(now)
	if wasProbe {
		cb.setState(StateClosed)
		cb.failures = cb.failures[:0]
	}
}

func (cb *CircuitBreaker) setState(s State) {
	if cb.state == s {
		return
	}
	cb.logger.Info("circuit breaker state changed", "breaker", cb.name, "from", cb.state.String(), "to", s.String())
	cb.state = s
}

func (cb *CircuitBreaker) cleanOldFailures(now time.Time) {
	cutoff := now.Add(-cb.window)
	i := 0
	for i < len(cb.failures) && !cb.failures[i].After(cutoff) {
		i++
	}
	cb.failures = cb.failures[i:]
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}
