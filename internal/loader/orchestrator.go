// Package loader generates partitions and bulk-loads them into the table
// store, one goroutine per partition.
package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/basekick-labs/tablebench/internal/config"
	"github.com/basekick-labs/tablebench/internal/sampler"
	"github.com/basekick-labs/tablebench/pkg/models"
	"github.com/rs/zerolog"
	"github.com/spaolacci/murmur3"
	"golang.org/x/sync/errgroup"
)

// Orchestrator runs the load phase.
type Orchestrator struct {
	uploader *Uploader
	cfg      OrchestratorConfig
	logger   zerolog.Logger
}

// OrchestratorConfig controls sampling and the failure policy.
type OrchestratorConfig struct {
	// SampleSizePerPartition wins over SamplePercentage when positive.
	SampleSizePerPartition int
	SamplePercentage       int
	// Seed 0 seeds from the clock.
	Seed          uint64
	FailurePolicy string
}

// NewOrchestrator creates an orchestrator that uploads with uploader.
func NewOrchestrator(uploader *Uploader, cfg OrchestratorConfig, logger zerolog.Logger) *Orchestrator {
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = config.FailureWaitAll
	}
	return &Orchestrator{
		uploader: uploader,
		cfg:      cfg,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
	}
}

// PartitionSeed derives a stable per-partition seed from the run seed, so a
// partition samples the same indexes regardless of configuration order.
func PartitionSeed(runSeed uint64, name string) uint64 {
	s := murmur3.Sum64WithSeed([]byte(name), uint32(runSeed)) ^ runSeed
	if s == 0 {
		s = 1
	}
	return s
}

// BuildSpecs draws the sample indexes of every partition. Specs are
// immutable once returned.
func (o *Orchestrator) BuildSpecs(partitions []config.Partition) []models.PartitionSpec {
	specs := make([]models.PartitionSpec, len(partitions))
	for i, p := range partitions {
		size := sampler.SizeFor(p.Population, o.cfg.SampleSizePerPartition, o.cfg.SamplePercentage)
		s := sampler.New(PartitionSeed(o.cfg.Seed, p.Name))
		specs[i] = models.PartitionSpec{
			Name:          p.Name,
			Population:    p.Population,
			SampleIndexes: s.Sample(size, p.Population),
		}
		o.logger.Debug().
			Str("partition", p.Name).
			Int("population", p.Population).
			Int("sample_size", len(specs[i].SampleIndexes)).
			Msg("Built partition spec")
	}
	return specs
}

// Run uploads every partition in its own goroutine and returns results in
// spec order. With the wait_all policy every partition runs to completion
// and the first failure is returned; fail_fast cancels the remaining
// partitions on the first failure. No results are returned on failure.
func (o *Orchestrator) Run(ctx context.Context, specs []models.PartitionSpec) ([]PartitionResult, error) {
	results := make([]PartitionResult, len(specs))

	var g *errgroup.Group
	runCtx := ctx
	if o.cfg.FailurePolicy == config.FailureFailFast {
		g, runCtx = errgroup.WithContext(ctx)
	} else {
		g = new(errgroup.Group)
	}

	o.logger.Info().
		Int("partitions", len(specs)).
		Str("failure_policy", o.cfg.FailurePolicy).
		Uint64("seed", o.cfg.Seed).
		Msg("Starting load phase")

	for i, spec := range specs {
		g.Go(func() error {
			res, err := o.uploader.Upload(runCtx, spec)
			if err != nil {
				o.logger.Error().Err(err).Str("partition", spec.Name).Msg("Partition upload failed")
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load phase: %w", err)
	}
	return results, nil
}

// CollectSample concatenates the sampled entities of every partition into a
// new slice.
func CollectSample(results []PartitionResult) []models.Entity {
	n := 0
	for _, r := range results {
		n += len(r.Sampled)
	}
	out := make([]models.Entity, 0, n)
	for _, r := range results {
		out = append(out, r.Sampled...)
	}
	return out
}
