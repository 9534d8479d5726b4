package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state
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
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrOpen is returned without calling the guarded function while the
	// breaker is open
	ErrOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when the half-open trial budget is spent
	ErrTooManyRequests = errors.New("too many requests")
)

// Settings holds the configuration for a circuit breaker
type Settings struct {
	Name             string
	MaxRequests      uint32        // trials allowed while half-open
	Timeout          time.Duration // time spent open before probing
	FailureThreshold uint32        // consecutive failures that open the circuit
	SuccessThreshold uint32        // half-open successes that close it again
	OnStateChange    func(name string, from, to State)
}

// CircuitBreaker stops calling a failing dependency for a cool-down period
type CircuitBreaker struct {
	settings Settings
	now      func() time.Time

	mu        sync.Mutex
	state     State
	failures  uint32
	successes uint32
	trials    uint32
	openUntil time.Time
}

// NewCircuitBreaker creates a closed circuit breaker with the given settings
func NewCircuitBreaker(s Settings) *CircuitBreaker {
	if s.MaxRequests == 0 {
		s.MaxRequests = 1
	}
	if s.Timeout == 0 {
		s.Timeout = time.Minute
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.SuccessThreshold == 0 {
		s.SuccessThreshold = 1
	}
	return &CircuitBreaker{settings: s, now: time.Now, state: StateClosed}
}

// State returns the current state, moving open to half-open once the
// timeout has elapsed
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refresh()
	return cb.state
}

// Execute runs fn unless the breaker is open. fn's error counts as a
// failure; a panic counts as a failure and is re-raised.
func (cb *CircuitBreaker) Execute(fn func() error) (err error) {
	if err := cb.admit(); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.record(false)
			panic(r)
		}
	}()

	err = fn()
	cb.record(err == nil)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.refresh()
	switch cb.state {
	case StateOpen:
		return ErrOpen
	case StateHalfOpen:
		if cb.trials >= cb.settings.MaxRequests {
			return ErrTooManyRequests
		}
		cb.trials++
	}
	return nil
}

func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		if success {
			cb.failures = 0
			return
		}
		cb.failures++
		if cb.failures >= cb.settings.FailureThreshold {
			cb.trip()
		}
	case StateHalfOpen:
		if !success {
			cb.trip()
			return
		}
		cb.successes++
		if cb.trials > 0 {
			cb.trials--
		}
		if cb.successes >= cb.settings.SuccessThreshold {
			cb.transition(StateClosed)
		}
	}
}

// refresh must be called with mu held
func (cb *CircuitBreaker) refresh() {
	if cb.state == StateOpen && !cb.now().Before(cb.openUntil) {
		cb.transition(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) trip() {
	cb.openUntil = cb.now().Add(cb.settings.Timeout)
	cb.transition(StateOpen)
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	cb.failures, cb.successes, cb.trials = 0, 0, 0
	if from != to && cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(cb.settings.Name, from, to)
	}
}
