// Package circuitbreaker stops calling a failing store after a run of
// consecutive failures and probes it again after a cool-down.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls are rejected
	StateHalfOpen              // a limited number of probes pass
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

// ErrCircuitOpen is returned without calling the operation while the circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config holds circuit breaker configuration
type Config struct {
	Name string

	// MaxFailures consecutive failures open the circuit.
	MaxFailures int

	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration

	// HalfOpenProbes successful probes close the circuit again.
	HalfOpenProbes int

	// IsFailure decides which errors count against the store. Nil counts
	// every error except context cancellation.
	IsFailure func(error) bool

	// Now is the clock; nil uses time.Now.
	Now func() time.Time
}

// DefaultConfig returns default circuit breaker configuration
func DefaultConfig(name string) Config {
	return Config{
		Name:           name,
		MaxFailures:    5,
		Cooldown:       10 * time.Second,
		HalfOpenProbes: 2,
	}
}

// Breaker implements the circuit breaker pattern. It is safe for concurrent use.
type Breaker struct {
	cfg    Config
	logger zerolog.Logger

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	inFlight  int // probes admitted while half-open
	openedAt  time.Time
}

// New creates a breaker. Zero fields of cfg fall back to DefaultConfig.
func New(cfg Config, logger zerolog.Logger) *Breaker {
	def := DefaultConfig(cfg.Name)
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = def.HalfOpenProbes
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = defaultIsFailure
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{
		cfg:    cfg,
		logger: logger.With().Str("component", "circuit-breaker").Str("name", cfg.Name).Logger(),
	}
}

func defaultIsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// Execute runs fn unless the circuit is open and records its outcome.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.admit() {
		return ErrCircuitOpen
	}
	err := fn(ctx)
	b.record(err)
	return err
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false
		}
		b.setState(StateHalfOpen)
		b.inFlight = 1
		return true
	case StateHalfOpen:
		if b.inFlight >= b.cfg.HalfOpenProbes {
			return false
		}
		b.inFlight++
		return true
	default:
		return true
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil && b.cfg.IsFailure(err) {
		b.failures++
		b.successes = 0
		switch b.state {
		case StateClosed:
			if b.failures >= b.cfg.MaxFailures {
				b.setState(StateOpen)
			}
		case StateHalfOpen:
			b.setState(StateOpen)
		}
		return
	}

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.cfg.HalfOpenProbes {
			b.setState(StateClosed)
		}
	}
}

// setState must be called with mu held.
func (b *Breaker) setState(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.failures = 0
	b.successes = 0
	b.inFlight = 0
	if to == StateOpen {
		b.openedAt = b.cfg.Now()
	}

	b.logger.Warn().
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Circuit breaker state changed")
}

// State returns the current state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(StateClosed)
	b.failures = 0
}
