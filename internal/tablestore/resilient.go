package tablestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/basekick-labs/tablebench/internal/circuitbreaker"
	"github.com/basekick-labs/tablebench/pkg/models"
	"github.com/rs/zerolog"
)

// ResilientConfig configures retries and the circuit breaker.
type ResilientConfig struct {
	MaxRetries    int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
	MaxFailures   int
	Cooldown      time.Duration
}

// ResilientStore retries failed store calls with exponential backoff behind
// a circuit breaker. A missing entity is a successful read.
type ResilientStore struct {
	Store
	cb     *circuitbreaker.Breaker
	logger zerolog.Logger

	maxRetries    int
	retryDelay    time.Duration
	retryMaxDelay time.Duration
}

// NewResilientStore wraps store.
func NewResilientStore(store Store, cfg ResilientConfig, logger zerolog.Logger) *ResilientStore {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 5 * time.Second
	}
	return &ResilientStore{
		Store: store,
		cb: circuitbreaker.New(circuitbreaker.Config{
			Name:        store.Type(),
			MaxFailures: cfg.MaxFailures,
			Cooldown:    cfg.Cooldown,
		}, logger),
		logger:        logger.With().Str("component", "resilient-tablestore").Logger(),
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
		retryMaxDelay: cfg.RetryMaxDelay,
	}
}

func (r *ResilientStore) InsertBatch(ctx context.Context, partitionKey string, entities []models.Entity) error {
	return r.do(ctx, "insert", partitionKey, func(ctx context.Context) error {
		return r.Store.InsertBatch(ctx, partitionKey, entities)
	})
}

func (r *ResilientStore) GetByKey(ctx context.Context, partitionKey, rowKey string) (models.Entity, bool, error) {
	var (
		e     models.Entity
		found bool
	)
	err := r.do(ctx, "get", partitionKey, func(ctx context.Context) error {
		var err error
		e, found, err = r.Store.GetByKey(ctx, partitionKey, rowKey)
		return err
	})
	return e, found, err
}

func (r *ResilientStore) do(ctx context.Context, op, partitionKey string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		err := r.cb.Execute(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			return fmt.Errorf("%s rejected for partition %s: %w", op, partitionKey, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == r.maxRetries {
			break
		}

		delay := min(r.retryDelay*time.Duration(1<<uint(attempt)), r.retryMaxDelay)
		r.logger.Warn().
			Err(err).
			Str("op", op).
			Str("partition", partitionKey).
			Int("attempt", attempt+1).
			Int("max_retries", r.maxRetries).
			Dur("retry_delay", delay).
			Msg("Store call failed, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s failed after %d retries: %w", op, r.maxRetries, lastErr)
}
