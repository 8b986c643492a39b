// Package query replays randomized batched point lookups for a sample of
// previously inserted entities.
package query

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/basekick-labs/tablebench/internal/sampler"
	"github.com/basekick-labs/tablebench/internal/stats"
	"github.com/basekick-labs/tablebench/internal/tablestore"
	"github.com/basekick-labs/tablebench/internal/timing"
	"github.com/basekick-labs/tablebench/pkg/models"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrInvariantViolation means the store could not find an entity this run
// inserted. It is never a benign miss.
var ErrInvariantViolation = errors.New("inserted entity not found")

// InvariantViolationError names the entity that went missing.
type InvariantViolationError struct {
	PartitionKey string
	RowKey       string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("%v: partition %q row %q", ErrInvariantViolation, e.PartitionKey, e.RowKey)
}

func (e *InvariantViolationError) Unwrap() error {
	return ErrInvariantViolation
}

// Config configures a Benchmark.
type Config struct {
	BatchSize int
	// Concurrency bounds the batches in flight; 0 uses runtime.NumCPU().
	Concurrency int
	// LookupConcurrency bounds the lookups in flight inside one batch;
	// 0 or 1 issues them sequentially.
	LookupConcurrency int
	// Seed drives the shuffle; 0 seeds from the clock.
	Seed uint64
	// Timer measures the phase; zero value uses the wall clock.
	Timer timing.Timer
}

// Result is the outcome of a query phase.
type Result struct {
	Batches int
	Lookups int64
	Latency stats.Snapshot
	Metrics timing.RunMetrics
}

// Benchmark runs the query phase against a store.
type Benchmark struct {
	store  tablestore.Store
	cfg    Config
	logger zerolog.Logger
}

// New creates a benchmark reading from store.
func New(store tablestore.Store, cfg Config, logger zerolog.Logger) *Benchmark {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if cfg.LookupConcurrency < 1 {
		cfg.LookupConcurrency = 1
	}
	return &Benchmark{
		store:  store,
		cfg:    cfg,
		logger: logger.With().Str("component", "query-benchmark").Logger(),
	}
}

// Run shuffles a copy of sample, splits it into batches and looks up every
// entity. The first store error or missing entity aborts the run.
func (b *Benchmark) Run(ctx context.Context, sample []models.Entity) (Result, error) {
	shuffled := make([]models.Entity, len(sample))
	copy(shuffled, sample)
	shuffler := sampler.New(b.cfg.Seed)
	shuffler.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	batches := Split(shuffled, b.cfg.BatchSize)
	latency := stats.NewHistogram()

	b.logger.Info().
		Int("entities", len(shuffled)).
		Int("batches", len(batches)).
		Int("concurrency", b.cfg.Concurrency).
		Int("lookup_concurrency", b.cfg.LookupConcurrency).
		Uint64("shuffle_seed", shuffler.Seed()).
		Msg("Starting query phase")

	elapsed, err := b.cfg.Timer.Measure(func() error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(b.cfg.Concurrency)
		for _, batch := range batches {
			g.Go(func() error {
				return b.queryBatch(gctx, batch, latency)
			})
		}
		return g.Wait()
	})
	if err != nil {
		return Result{}, fmt.Errorf("query phase: %w", err)
	}

	res := Result{
		Batches: len(batches),
		Lookups: int64(len(shuffled)),
		Latency: latency.Snapshot(),
		Metrics: timing.Throughput(int64(len(shuffled)), elapsed),
	}
	b.logger.Info().
		Int64("lookups", res.Lookups).
		Dur("elapsed", elapsed).
		Str("queries_per_second", res.Metrics.RateString()).
		Msg("Query phase complete")
	return res, nil
}

func (b *Benchmark) queryBatch(ctx context.Context, batch []models.Entity, latency *stats.Histogram) error {
	if b.cfg.LookupConcurrency == 1 {
		for _, e := range batch {
			if err := b.lookup(ctx, e, latency); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.LookupConcurrency)
	for _, e := range batch {
		g.Go(func() error {
			return b.lookup(gctx, e, latency)
		})
	}
	return g.Wait()
}

func (b *Benchmark) lookup(ctx context.Context, e models.Entity, latency *stats.Histogram) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	_, found, err := b.store.GetByKey(ctx, e.PartitionKey, e.RowKey)
	latency.Record(time.Since(start))
	if err != nil {
		return fmt.Errorf("lookup %s: %w", e.Key(), err)
	}
	if !found {
		b.logger.Error().
			Str("partition", e.PartitionKey).
			Str("row_key", e.RowKey).
			Msg("Inserted entity not found")
		return &InvariantViolationError{PartitionKey: e.PartitionKey, RowKey: e.RowKey}
	}
	return nil
}

// Split cuts entities into contiguous batches of size n; the last batch may
// be shorter. The batches share entities' backing array.
func Split(entities []models.Entity, n int) [][]models.Entity {
	if n < 1 {
		n = 1
	}
	out := make([][]models.Entity, 0, (len(entities)+n-1)/n)
	for start := 0; start < len(entities); start += n {
		end := min(start+n, len(entities))
		out = append(out, entities[start:end:end])
	}
	return out
}
