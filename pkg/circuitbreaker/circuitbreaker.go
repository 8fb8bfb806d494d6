// Package circuitbreaker maps service settings onto sony/gobreaker.
package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker"
)

var (
	// ErrOpen is returned without calling fn while the breaker is open.
	ErrOpen = gobreaker.ErrOpenState
	// ErrTooManyRequests is returned while half-open once the trial quota is used.
	ErrTooManyRequests = gobreaker.ErrTooManyRequests
)

type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

type Settings struct {
	Name string
	// MaxFailures consecutive failures open the breaker.
	MaxFailures uint32
	// Timeout is how long the breaker stays open before trial calls.
	Timeout time.Duration
	// HalfOpenRequests caps concurrent trial calls while half-open.
	HalfOpenRequests uint32
	OnStateChange    func(name string, from, to State)
}

type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

func NewCircuitBreaker(settings Settings) *CircuitBreaker {
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 5 * time.Second
	}
	if settings.HalfOpenRequests == 0 {
		settings.HalfOpenRequests = 1
	}
	maxFailures := settings.MaxFailures

	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.HalfOpenRequests,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: settings.OnStateChange,
	})}
}

func (c *CircuitBreaker) Name() string {
	return c.cb.Name()
}

func (c *CircuitBreaker) State() State {
	return c.cb.State()
}

// Execute runs fn unless the breaker rejects the call.
func (c *CircuitBreaker) Execute(fn func() error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}
