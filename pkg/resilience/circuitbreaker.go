// Package resilience guards calls to remote stores: a circuit breaker for the
// redis result cache, exponential backoff retry for synonym and dictionary
// snapshot I/O, and a bounded wait for probes.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the guarded function while the
// breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the phase of a circuit breaker.
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
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig controls tripping and recovery. Zero values take the
// defaults: 5 failures, 30s reset, 1 probe.
type CircuitBreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
	// IsFailure decides whether an error counts against the breaker. Nil
	// counts every error. Errors that do not count still reach the caller.
	IsFailure func(error) bool
	// OnStateChange runs after every transition, outside the breaker lock.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker opens after FailureThreshold consecutive failures, rejects
// calls for ResetTimeout, then lets HalfOpenMaxRequests probes through. A
// successful probe closes it and a failed one reopens it.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute runs fn unless the breaker rejects the call, and records the
// outcome. fn's error is returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	failed := err != nil && (cb.cfg.IsFailure == nil || cb.cfg.IsFailure(err))
	cb.record(failed)
	return err
}

// State returns the current state. An open breaker whose reset timeout has
// passed still reports open until the next call probes it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state, cb.failures, cb.probes = StateClosed, 0, 0
	cb.mu.Unlock()
	cb.changed(from, StateClosed)
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		wait := cb.cfg.ResetTimeout - cb.now().Sub(cb.openedAt)
		if wait > 0 {
			cb.mu.Unlock()
			return fmt.Errorf("%w: %s (retry in %v)", ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
		}
		cb.state, cb.probes = StateHalfOpen, 1
		cb.mu.Unlock()
		cb.changed(StateOpen, StateHalfOpen)
		return nil
	case StateHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenMaxRequests {
			cb.mu.Unlock()
			return fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, cb.name)
		}
		cb.probes++
	}
	cb.mu.Unlock()
	return nil
}

func (cb *CircuitBreaker) record(failed bool) {
	cb.mu.Lock()
	from := cb.state
	if !failed {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.state, cb.probes = StateClosed, 0
		}
	} else {
		cb.failures++
		if cb.state == StateHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
			cb.state, cb.openedAt, cb.probes = StateOpen, cb.now(), 0
		}
	}
	to, failures := cb.state, cb.failures
	cb.mu.Unlock()

	if from != to {
		if to == StateOpen {
			cb.logger.Warn("circuit opened", "consecutive_failures", failures, "from", from.String())
		} else {
			cb.logger.Info("circuit closed")
		}
		cb.changed(from, to)
	}
}

func (cb *CircuitBreaker) changed(from, to State) {
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}
