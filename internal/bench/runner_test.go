package bench

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/basekick-labs/tablebench/internal/config"
	"github.com/basekick-labs/tablebench/internal/loader"
	"github.com/basekick-labs/tablebench/internal/query"
	"github.com/basekick-labs/tablebench/internal/sampleio"
	"github.com/basekick-labs/tablebench/internal/tablestore"
	"github.com/basekick-labs/tablebench/internal/timing"
	"github.com/basekick-labs/tablebench/pkg/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Bench: config.BenchConfig{
			TableName:              "People",
			SampleSizePerPartition: 3,
			UploadBatchSize:        4,
			QueryBatchSize:         2,
			QueryConcurrency:       2,
			LookupConcurrency:      1,
			Seed:                   7,
			FailurePolicy:          config.FailureWaitAll,
		},
		Partitions: []config.Partition{
			{Name: "North", Population: 10},
			{Name: "South", Population: 7},
			{Name: "Empty", Population: 0},
		},
		Store: config.StoreConfig{Backend: "memory"},
	}
}

func steppingClock(step time.Duration) timing.Timer {
	now := time.Unix(0, 0)
	return timing.Timer{Now: func() time.Time {
		now = now.Add(step)
		return now
	}}
}

func TestRunner_Run(t *testing.T) {
	mem := tablestore.NewMemoryStore()
	store := tablestore.NewCountingStore(mem)
	r := NewRunner(testConfig(), store, zerolog.Nop()).WithTimer(steppingClock(time.Second))

	out, err := r.Run(context.Background(), Options{})
	require.NoError(t, err)

	require.NotNil(t, out.Load)
	assert.Equal(t, "memory", out.Backend)
	assert.Equal(t, uint64(7), out.Seed)
	assert.Equal(t, int64(17), out.Load.Summary.TotalPopulation)
	assert.Equal(t, 3+2, out.Load.Summary.TotalBatches)
	assert.Equal(t, 6, out.Load.Summary.SampleSize)
	assert.Equal(t, 17, mem.Len())
	assert.Equal(t, time.Second, out.Load.Metrics.Elapsed)
	assert.InDelta(t, 17.0, out.Load.Metrics.EntitiesPerSecond, 1e-9)

	assert.Equal(t, int64(6), out.Query.Lookups)
	assert.Equal(t, 3, out.Query.Batches)
	assert.Equal(t, int64(6), store.Counts().Lookups)
	assert.Equal(t, int64(0), store.Counts().Misses)
}

func TestRunner_ExportThenReuse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.zst")
	mem := tablestore.NewMemoryStore()
	cfg := testConfig()

	first, err := NewRunner(cfg, mem, zerolog.Nop()).Run(context.Background(), Options{ExportSample: path})
	require.NoError(t, err)

	exported, err := sampleio.Read(path)
	require.NoError(t, err)
	assert.Len(t, exported, 6)

	counting := tablestore.NewCountingStore(mem)
	second, err := NewRunner(cfg, counting, zerolog.Nop()).Run(context.Background(), Options{ReuseSample: path})
	require.NoError(t, err)

	assert.Nil(t, second.Load)
	assert.Equal(t, first.Query.Lookups, second.Query.Lookups)
	assert.Equal(t, int64(0), counting.Counts().Batches, "reuse must not load")
	assert.Equal(t, 17, mem.Len())
}

func TestRunner_ReuseAgainstEmptyStoreFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.sz")
	require.NoError(t, sampleio.Write(path, []models.Entity{{PartitionKey: "North", RowKey: "gone"}}))

	_, err := NewRunner(testConfig(), tablestore.NewMemoryStore(), zerolog.Nop()).
		Run(context.Background(), Options{ReuseSample: path})
	require.Error(t, err)

	phase, ok := FailedPhase(err)
	assert.True(t, ok)
	assert.Equal(t, PhaseQuery, phase)
	assert.ErrorIs(t, err, query.ErrInvariantViolation)
}

func TestRunner_MissingReuseFile(t *testing.T) {
	_, err := NewRunner(testConfig(), tablestore.NewMemoryStore(), zerolog.Nop()).
		Run(context.Background(), Options{ReuseSample: filepath.Join(t.TempDir(), "nope.zst")})
	phase, _ := FailedPhase(err)
	assert.Equal(t, PhaseSetup, phase)
}

type brokenStore struct {
	*tablestore.MemoryStore
}

func (brokenStore) InsertBatch(context.Context, string, []models.Entity) error {
	return errors.New("disk on fire")
}

func TestRunner_LoadFailure(t *testing.T) {
	_, err := NewRunner(testConfig(), brokenStore{tablestore.NewMemoryStore()}, zerolog.Nop()).
		Run(context.Background(), Options{})
	require.Error(t, err)

	phase, _ := FailedPhase(err)
	assert.Equal(t, PhaseLoad, phase)
	assert.ErrorIs(t, err, loader.ErrPartitionFailed)
}

func TestFailedPhase_NotAPhaseError(t *testing.T) {
	_, ok := FailedPhase(errors.New("plain"))
	assert.False(t, ok)
}
