// Package circuitbreaker stops calling a backend that keeps failing and lets
// a few probe calls through once a cool-down has passed.
package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// defaultProbeCalls is how many successes in half-open close the circuit.
const defaultProbeCalls = 3

// CircuitBreaker counts consecutive failures of one backend. After
// maxFailures it opens and rejects calls until cooldown has elapsed.
type CircuitBreaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	probeCalls  int
	isFailure   func(error) bool
	clock       clock.Clock
	logger      *logrus.Logger

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	probes      int
	probeWins   int
	requests    uint64
	rejected    uint64
	lastFailure time.Time
}

type Option func(*CircuitBreaker)

// WithClock swaps the time source, for tests.
func WithClock(c clock.Clock) Option {
	return func(cb *CircuitBreaker) { cb.clock = c }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(cb *CircuitBreaker) { cb.logger = logger }
}

// WithFailurePredicate decides which errors count against the backend.
// Errors it rejects pass through without changing the state.
func WithFailurePredicate(fn func(error) bool) Option {
	return func(cb *CircuitBreaker) { cb.isFailure = fn }
}

// WithProbeCalls sets how many half-open successes close the circuit.
func WithProbeCalls(n int) Option {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.probeCalls = n
		}
	}
}

func New(name string, maxFailures int, cooldown time.Duration, opts ...Option) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	cb := &CircuitBreaker{
		name:        name,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		probeCalls:  defaultProbeCalls,
		isFailure:   func(err error) bool { return err != nil },
		clock:       clock.New(),
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Execute runs fn unless the circuit is open, in which case it returns an
// *OpenError without calling fn.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.after(err)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.advanceLocked()
	switch cb.state {
	case StateOpen:
		cb.rejected++
		return &OpenError{Name: cb.name, RetryIn: cb.cooldown - cb.clock.Since(cb.openedAt)}
	case StateHalfOpen:
		if cb.probes >= cb.probeCalls {
			cb.rejected++
			return &OpenError{Name: cb.name}
		}
		cb.probes++
	}
	cb.requests++
	return nil
}

func (cb *CircuitBreaker) after(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && cb.isFailure(err) {
		cb.failures++
		cb.lastFailure = cb.clock.Now()
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.tripLocked()
		}
		return
	}

	switch cb.state {
	case StateHalfOpen:
		cb.probeWins++
		if cb.probeWins >= cb.probeCalls {
			cb.state = StateClosed
			cb.failures = 0
			cb.logger.WithField("circuit_breaker", cb.name).Info("Circuit breaker closed after successful recovery")
		}
	case StateClosed:
		cb.failures = 0
	}
}

// advanceLocked moves an open circuit to half-open once the cool-down is over.
func (cb *CircuitBreaker) advanceLocked() {
	if cb.state == StateOpen && cb.clock.Since(cb.openedAt) >= cb.cooldown {
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeWins = 0
		cb.logger.WithField("circuit_breaker", cb.name).Info("Circuit breaker half-open, probing backend")
	}
}

func (cb *CircuitBreaker) tripLocked() {
	cb.state = StateOpen
	cb.openedAt = cb.clock.Now()
	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"failures":        cb.failures,
		"cooldown_ms":     cb.cooldown.Milliseconds(),
	}).Warn("Circuit breaker opened due to failures")
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advanceLocked()
	return cb.state
}

type Stats struct {
	Name        string
	State       State
	Failures    int
	Requests    uint64
	Rejected    uint64
	LastFailure time.Time
}

func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advanceLocked()
	return Stats{
		Name:        cb.name,
		State:       cb.state,
		Failures:    cb.failures,
		Requests:    cb.requests,
		Rejected:    cb.rejected,
		LastFailure: cb.lastFailure,
	}
}

// OpenError is returned instead of calling a backend whose circuit is open.
type OpenError struct {
	Name    string
	RetryIn time.Duration
}

func (e *OpenError) Error() string {
	if e.RetryIn > 0 {
		return fmt.Sprintf("circuit breaker '%s' is open, retry in %s", e.Name, e.RetryIn.Round(time.Millisecond))
	}
	return fmt.Sprintf("circuit breaker '%s' is open", e.Name)
}
