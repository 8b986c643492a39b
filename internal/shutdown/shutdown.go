// Package shutdown closes run resources in order and turns SIGINT/SIGTERM
// into context cancellation.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Closer is anything that releases resources on shutdown.
type Closer interface {
	Close() error
}

// HookFunc runs during shutdown before any Closer.
type HookFunc func(ctx context.Context) error

// Priorities, lower closes first.
const (
	PriorityReporter = 10 // flush pushed metrics
	PriorityStore    = 50 // table store decorators
	PriorityBackend  = 90 // clients and connection pools
)

// Coordinator closes registered components once, in priority order.
type Coordinator struct {
	timeout time.Duration
	logger  zerolog.Logger

	mu         sync.Mutex
	components []entry[Closer]
	hooks      []entry[HookFunc]

	once sync.Once
	err  error
}

type entry[T any] struct {
	name     string
	value    T
	priority int
}

// New creates a coordinator whose Shutdown gives up after timeout.
func New(timeout time.Duration, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		timeout: timeout,
		logger:  logger.With().Str("component", "shutdown").Logger(),
	}
}

// Register adds a component to close on shutdown.
func (c *Coordinator) Register(name string, component Closer, priority int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components = append(c.components, entry[Closer]{name, component, priority})
	c.logger.Debug().Str("name", name).Int("priority", priority).Msg("Registered component for shutdown")
}

// RegisterHook adds a function to run on shutdown.
func (c *Coordinator) RegisterHook(name string, hook HookFunc, priority int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, entry[HookFunc]{name, hook, priority})
	c.logger.Debug().Str("name", name).Int("priority", priority).Msg("Registered shutdown hook")
}

// NotifyContext returns a context cancelled on the first SIGINT or SIGTERM.
// Workers observe it between batches. Calling the returned cancel stops
// listening for signals.
func (c *Coordinator) NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(quit)
		select {
		case sig := <-quit:
			c.logger.Warn().Str("signal", sig.String()).Msg("Received shutdown signal, stopping run")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Shutdown runs hooks then closes components. Later calls return the result
// of the first. All failures are joined into the returned error.
func (c *Coordinator) Shutdown() error {
	c.once.Do(func() {
		c.mu.Lock()
		hooks := append([]entry[HookFunc](nil), c.hooks...)
		components := append([]entry[Closer](nil), c.components...)
		c.mu.Unlock()

		sort.SliceStable(hooks, func(i, j int) bool { return hooks[i].priority < hooks[j].priority })
		sort.SliceStable(components, func(i, j int) bool { return components[i].priority < components[j].priority })

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		start := time.Now()

		var errs []error
		for _, h := range hooks {
			if ctx.Err() != nil {
				c.logger.Warn().Str("hook", h.name).Msg("Shutdown timeout reached, skipping remaining hooks")
				errs = append(errs, ctx.Err())
				break
			}
			if err := h.value(ctx); err != nil {
				c.logger.Error().Err(err).Str("hook", h.name).Msg("Shutdown hook failed")
				errs = append(errs, err)
			}
		}

		for _, comp := range components {
			if ctx.Err() != nil {
				c.logger.Warn().Str("name", comp.name).Msg("Shutdown timeout reached, skipping remaining components")
				errs = append(errs, ctx.Err())
				break
			}
			if err := comp.value.Close(); err != nil {
				c.logger.Error().Err(err).Str("name", comp.name).Msg("Component shutdown failed")
				errs = append(errs, err)
				continue
			}
			c.logger.Debug().Str("name", comp.name).Msg("Component closed")
		}

		c.err = errors.Join(errs...)
		c.logger.Debug().Dur("duration", time.Since(start)).Msg("Shutdown complete")
	})
	return c.err
}
