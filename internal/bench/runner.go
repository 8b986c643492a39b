// Package bench wires the load and query phases into one benchmark run.
package bench

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/basekick-labs/tablebench/internal/config"
	"github.com/basekick-labs/tablebench/internal/dataset"
	"github.com/basekick-labs/tablebench/internal/loader"
	"github.com/basekick-labs/tablebench/internal/query"
	"github.com/basekick-labs/tablebench/internal/report"
	"github.com/basekick-labs/tablebench/internal/sampleio"
	"github.com/basekick-labs/tablebench/internal/stats"
	"github.com/basekick-labs/tablebench/internal/tablestore"
	"github.com/basekick-labs/tablebench/internal/timing"
	"github.com/basekick-labs/tablebench/pkg/models"
	"github.com/rs/zerolog"
)

// Phases of a run, as reported by PhaseError.
const (
	PhaseSetup  = "setup"
	PhaseLoad   = "load"
	PhaseExport = "export"
	PhaseQuery  = "query"
)

// PhaseError tags a failure with the phase it happened in.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s phase failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// FailedPhase returns the phase named by the first PhaseError in err's tree.
func FailedPhase(err error) (string, bool) {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase, true
	}
	return "", false
}

// Options select where the query sample comes from and goes to.
type Options struct {
	// ExportSample, when set, receives the sample after a successful load.
	ExportSample string
	// ReuseSample, when set, skips the load phase and queries this sample.
	ReuseSample string
}

// Runner executes benchmark runs against one store.
type Runner struct {
	cfg    *config.Config
	store  tablestore.Store
	timer  timing.Timer
	logger zerolog.Logger
}

func NewRunner(cfg *config.Config, store tablestore.Store, logger zerolog.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		store:  store,
		timer:  timing.Default,
		logger: logger.With().Str("component", "runner").Logger(),
	}
}

// WithTimer replaces the clock used to measure both phases.
func (r *Runner) WithTimer(t timing.Timer) *Runner {
	r.timer = t
	return r
}

// Run executes one benchmark. Nothing is reported for a failed run.
func (r *Runner) Run(ctx context.Context, opts Options) (report.Run, error) {
	b := r.cfg.Bench
	seed := b.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	out := report.Run{
		Backend:    r.store.Type(),
		Table:      b.TableName,
		Seed:       seed,
		Population: r.cfg.TotalPopulation(),
	}

	if err := r.store.CreateTableIfAbsent(ctx); err != nil {
		return report.Run{}, &PhaseError{Phase: PhaseSetup, Err: err}
	}

	var sample []models.Entity
	if opts.ReuseSample != "" {
		s, took, err := timing.MeasureValue(func() ([]models.Entity, error) {
			return sampleio.Read(opts.ReuseSample)
		})
		if err != nil {
			return report.Run{}, &PhaseError{Phase: PhaseSetup, Err: err}
		}
		r.logger.Info().
			Str("path", opts.ReuseSample).
			Int("entities", len(s)).
			Dur("read_time", took).
			Msg("Reusing exported sample")
		sample = s
	} else {
		load, s, err := r.load(ctx, seed)
		if err != nil {
			return report.Run{}, &PhaseError{Phase: PhaseLoad, Err: err}
		}
		out.Load = load
		out.Population = load.Summary.TotalPopulation
		sample = s

		if opts.ExportSample != "" {
			if err := sampleio.Write(opts.ExportSample, sample); err != nil {
				return report.Run{}, &PhaseError{Phase: PhaseExport, Err: err}
			}
			r.logger.Info().Str("path", opts.ExportSample).Int("entities", len(sample)).Msg("Exported sample")
		}
	}

	qb := query.New(r.store, query.Config{
		BatchSize:         b.QueryBatchSize,
		Concurrency:       b.QueryConcurrency,
		LookupConcurrency: b.LookupConcurrency,
		Seed:              loader.PartitionSeed(seed, "query"),
		Timer:             r.timer,
	}, r.logger)
	res, err := qb.Run(ctx, sample)
	if err != nil {
		return report.Run{}, &PhaseError{Phase: PhaseQuery, Err: err}
	}
	out.Query = res
	return out, nil
}

func (r *Runner) load(ctx context.Context, seed uint64) (*report.LoadPhase, []models.Entity, error) {
	b := r.cfg.Bench
	latency := stats.NewHistogram()

	up := loader.NewUploader(r.store, loader.UploaderConfig{
		BatchSize: b.UploadBatchSize,
		NewFactory: func(spec models.PartitionSpec) dataset.EntityFactory {
			return dataset.NewPersonFactory(loader.PartitionSeed(seed+1, spec.Name))
		},
		Estimator: loader.AzureTableSize{},
		Latency:   latency,
	}, r.logger)
	orch := loader.NewOrchestrator(up, loader.OrchestratorConfig{
		SampleSizePerPartition: b.SampleSizePerPartition,
		SamplePercentage:       b.SamplePercentage,
		Seed:                   seed,
		FailurePolicy:          b.FailurePolicy,
	}, r.logger)

	specs := orch.BuildSpecs(r.cfg.Partitions)

	var results []loader.PartitionResult
	elapsed, err := r.timer.Measure(func() error {
		var runErr error
		results, runErr = orch.Run(ctx, specs)
		return runErr
	})
	if err != nil {
		return nil, nil, err
	}

	summary := loader.Summarize(results)
	return &report.LoadPhase{
		Summary: summary,
		Metrics: timing.Throughput(summary.TotalPopulation, elapsed),
		Latency: latency.Snapshot(),
	}, loader.CollectSample(results), nil
}
