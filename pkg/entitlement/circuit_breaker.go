package entitlement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerState represents the current state of the circuit breaker.
type CircuitBreakerState string

const (
	StateClosed   CircuitBreakerState = "closed"
	StateOpen     CircuitBreakerState = "open"
	StateHalfOpen CircuitBreakerState = "half_open"
)

var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// CircuitBreaker defines the interface for a circuit breaker.
type CircuitBreaker interface {
	// Execute executes the given function within the circuit breaker.
	Execute(ctx context.Context, fn func() error) error
	// State returns the current state of the circuit breaker.
	State() CircuitBreakerState
}

// isFault reports whether err should count against the breaker.
// Lookups for unknown accounts are answers, not faults.
func isFault(err error) bool {
	return err != nil && !errors.Is(err, ErrAccountNotFound) && !errors.Is(err, context.Canceled)
}

// DefaultCircuitBreaker is a simple circuit breaker implementation.
type DefaultCircuitBreaker struct {
	mu sync.RWMutex

	state               CircuitBreakerState
	failureThreshold    int
	resetTimeout        time.Duration
	consecutiveFailures int
	lastFailureTime     time.Time

	onStateChange func(state CircuitBreakerState)
}

// NewDefaultCircuitBreaker creates a new default circuit breaker.
func NewDefaultCircuitBreaker(failureThreshold int, resetTimeout time.Duration,
	onStateChange func(state CircuitBreakerState)) *DefaultCircuitBreaker {
	return &DefaultCircuitBreaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		onStateChange:    onStateChange,
	}
}

func (cb *DefaultCircuitBreaker) State() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.currentState()
}

func (cb *DefaultCircuitBreaker) currentState() CircuitBreakerState {
	if cb.state == StateOpen && time.Since(cb.lastFailureTime) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

func (cb *DefaultCircuitBreaker) Execute(_ context.Context, fn func() error) error {
	if cb.State() == StateOpen {
		return ErrCircuitOpen
	}

	err := fn()
	if isFault(err) {
		cb.failure()
		return err
	}

	cb.success()
	return err
}

func (cb *DefaultCircuitBreaker) success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateClosed {
		cb.changeState(StateClosed)
	}
	cb.consecutiveFailures = 0
}

func (cb *DefaultCircuitBreaker) failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// Resolve a lapsed open state first so a failed probe re-opens the circuit.
	if cb.currentState() == StateHalfOpen {
		cb.state = StateHalfOpen
	}

	cb.consecutiveFailures++
	cb.lastFailureTime = time.Now()

	if cb.state == StateClosed && cb.consecutiveFailures >= cb.failureThreshold {
		cb.changeState(StateOpen)
	} else if cb.state == StateHalfOpen {
		cb.changeState(StateOpen)
	}
}

func (cb *DefaultCircuitBreaker) changeState(newState CircuitBreakerState) {
	if cb.state != newState {
		cb.state = newState
		if cb.onStateChange != nil {
			cb.onStateChange(newState)
		}
	}
}

// GoBreaker adapts sony/gobreaker to the CircuitBreaker interface.
type GoBreaker struct {
	cb *gobreaker.CircuitBreaker[struct{}]
}

// GoBreakerSettings configures NewGoBreaker.
type GoBreakerSettings struct {
	Name string

	// FailureThreshold consecutive faults open the circuit.
	FailureThreshold uint32

	// ResetTimeout is how long the circuit stays open before probing.
	ResetTimeout time.Duration

	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32

	OnStateChange func(state CircuitBreakerState)
}

// NewGoBreaker creates a gobreaker-backed CircuitBreaker.
func NewGoBreaker(settings GoBreakerSettings) *GoBreaker {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	if settings.HalfOpenRequests == 0 {
		settings.HalfOpenRequests = 1
	}
	threshold := settings.FailureThreshold

	st := gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.HalfOpenRequests,
		Timeout:     settings.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return !isFault(err)
		},
	}
	if settings.OnStateChange != nil {
		onChange := settings.OnStateChange
		st.OnStateChange = func(_ string, _, to gobreaker.State) {
			onChange(fromGoBreakerState(to))
		}
	}

	return &GoBreaker{cb: gobreaker.NewCircuitBreaker[struct{}](st)}
}

func (g *GoBreaker) Execute(_ context.Context, fn func() error) error {
	_, err := g.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

func (g *GoBreaker) State() CircuitBreakerState {
	return fromGoBreakerState(g.cb.State())
}

func fromGoBreakerState(s gobreaker.State) CircuitBreakerState {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
