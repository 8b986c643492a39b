package loader

import (
	"context"
	"time"

	"github.com/basekick-labs/tablebench/internal/dataset"
	"github.com/basekick-labs/tablebench/internal/stats"
	"github.com/basekick-labs/tablebench/internal/tablestore"
	"github.com/basekick-labs/tablebench/pkg/models"
	"github.com/rs/zerolog"
)

// PartitionResult is the outcome of one successful partition upload.
type PartitionResult struct {
	Name       string
	Population int
	// Sampled holds the entities kept for the query phase, in generation order.
	Sampled                       []models.Entity
	AverageSampledEntitySizeBytes float64
	Batches                       int
	Elapsed                       time.Duration
}

// FactoryFunc returns the entity factory for one partition worker.
type FactoryFunc func(spec models.PartitionSpec) dataset.EntityFactory

// Uploader streams one partition into the store, one batch at a time.
type Uploader struct {
	store      tablestore.Store
	batchSize  int
	newFactory FactoryFunc
	estimator  SizeEstimator
	latency    *stats.Histogram
	logger     zerolog.Logger
}

// UploaderConfig configures an Uploader. Nil NewFactory uses DefaultFactory;
// nil Estimator uses AzureTableSize; nil Latency disables batch latency
// recording.
type UploaderConfig struct {
	BatchSize  int
	NewFactory FactoryFunc
	Estimator  SizeEstimator
	Latency    *stats.Histogram
}

// DefaultFactory builds a PersonFactory seeded from the partition name.
func DefaultFactory(spec models.PartitionSpec) dataset.EntityFactory {
	return dataset.NewPersonFactory(PartitionSeed(0, spec.Name))
}

// NewUploader creates an uploader writing to store.
func NewUploader(store tablestore.Store, cfg UploaderConfig, logger zerolog.Logger) *Uploader {
	if cfg.NewFactory == nil {
		cfg.NewFactory = DefaultFactory
	}
	if cfg.Estimator == nil {
		cfg.Estimator = AzureTableSize{}
	}
	return &Uploader{
		store:      store,
		batchSize:  cfg.BatchSize,
		newFactory: cfg.NewFactory,
		estimator:  cfg.Estimator,
		latency:    cfg.Latency,
		logger:     logger.With().Str("component", "uploader").Logger(),
	}
}

// Upload generates spec's entities and inserts them batch by batch. Each
// insert completes before the next batch is generated. Any failure aborts
// the partition with a *PartitionError.
func (u *Uploader) Upload(ctx context.Context, spec models.PartitionSpec) (PartitionResult, error) {
	start := time.Now()
	gen := dataset.NewGenerator(spec, u.batchSize, u.newFactory(spec))

	batches := 0
	for {
		if err := ctx.Err(); err != nil {
			return PartitionResult{}, &PartitionError{Partition: spec.Name, Batch: batches, Err: err}
		}

		batch, ok := gen.Next()
		if !ok {
			break
		}
		batches++

		insertStart := time.Now()
		if err := u.store.InsertBatch(ctx, spec.Name, batch); err != nil {
			return PartitionResult{}, &PartitionError{Partition: spec.Name, Batch: batches, Err: err}
		}
		if u.latency != nil {
			u.latency.Record(time.Since(insertStart))
		}

		u.logger.Trace().
			Str("partition", spec.Name).
			Int("batch", batches).
			Int("size", len(batch)).
			Msg("Inserted batch")
	}

	sampled := gen.Sampled()
	res := PartitionResult{
		Name:                          spec.Name,
		Population:                    spec.Population,
		Sampled:                       sampled,
		AverageSampledEntitySizeBytes: averageSize(u.estimator, sampled),
		Batches:                       batches,
		Elapsed:                       time.Since(start),
	}

	u.logger.Info().
		Str("partition", spec.Name).
		Int("entities", gen.Generated()).
		Int("batches", batches).
		Int("sampled", len(sampled)).
		Dur("elapsed", res.Elapsed).
		Msgf("Uploaded %d entities for partition %s", gen.Generated(), spec.Name)

	return res, nil
}
