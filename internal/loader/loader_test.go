package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/basekick-labs/tablebench/internal/config"
	"github.com/basekick-labs/tablebench/internal/dataset"
	"github.com/basekick-labs/tablebench/internal/stats"
	"github.com/basekick-labs/tablebench/internal/tablestore"
	"github.com/basekick-labs/tablebench/pkg/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func personFactory(seed uint64) FactoryFunc {
	return func(spec models.PartitionSpec) dataset.EntityFactory {
		return dataset.NewPersonFactory(PartitionSeed(seed, spec.Name) + 1)
	}
}

func newTestOrchestrator(store tablestore.Store, batchSize int, cfg OrchestratorConfig) *Orchestrator {
	up := NewUploader(store, UploaderConfig{
		BatchSize:  batchSize,
		NewFactory: personFactory(cfg.Seed),
		Latency:    stats.NewHistogram(),
	}, zerolog.Nop())
	return NewOrchestrator(up, cfg, zerolog.Nop())
}

func TestOrchestrator_Scenario(t *testing.T) {
	store := tablestore.NewCountingStore(tablestore.NewMemoryStore())
	o := newTestOrchestrator(store, 4, OrchestratorConfig{SampleSizePerPartition: 2, Seed: 99})

	specs := o.BuildSpecs([]config.Partition{{Name: "A", Population: 10}, {Name: "B", Population: 20}, {Name: "C", Population: 5}})
	results, err := o.Run(context.Background(), specs)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, int64(10), store.Counts().Batches)
	assert.Equal(t, int64(35), store.Counts().Inserted)

	assert.Equal(t, "A", results[0].Name)
	assert.Equal(t, 3, results[0].Batches)
	assert.Equal(t, 5, results[1].Batches)
	assert.Equal(t, 2, results[2].Batches)

	sample := CollectSample(results)
	assert.Len(t, sample, 6)
	for _, e := range sample {
		got, found, err := store.GetByKey(context.Background(), e.PartitionKey, e.RowKey)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, e, got)
	}

	sum := Summarize(results)
	assert.Equal(t, int64(35), sum.TotalPopulation)
	assert.Equal(t, 10, sum.TotalBatches)
	assert.Equal(t, 6, sum.SampleSize)
	assert.Greater(t, sum.AverageEntitySizeBytes, 0.0)
}

func TestOrchestrator_BuildSpecs(t *testing.T) {
	o := newTestOrchestrator(tablestore.NewMemoryStore(), 100, OrchestratorConfig{SamplePercentage: 1, Seed: 7})

	specs := o.BuildSpecs([]config.Partition{{Name: "Lazio", Population: 1000}, {Name: "Tiny", Population: 99}, {Name: "Empty", Population: 0}})
	require.Len(t, specs, 3)
	assert.Len(t, specs[0].SampleIndexes, 10)
	assert.Empty(t, specs[1].SampleIndexes, "one percent of 99 rounds down to zero")
	assert.Empty(t, specs[2].SampleIndexes)
	for idx := range specs[0].SampleIndexes {
		assert.GreaterOrEqual(t, idx, 1)
		assert.LessOrEqual(t, idx, 1000)
	}

	// the same seed picks the same indexes whatever the partition order
	again := o.BuildSpecs([]config.Partition{{Name: "Other", Population: 5}, {Name: "Lazio", Population: 1000}})
	assert.Equal(t, specs[0].SampleIndexes, again[1].SampleIndexes)
}

func TestPartitionSeed(t *testing.T) {
	assert.Equal(t, PartitionSeed(42, "Lazio"), PartitionSeed(42, "Lazio"))
	assert.NotEqual(t, PartitionSeed(42, "Lazio"), PartitionSeed(42, "Molise"))
	assert.NotEqual(t, PartitionSeed(42, "Lazio"), PartitionSeed(43, "Lazio"))
	assert.NotZero(t, PartitionSeed(0, ""))
}

func TestOrchestrator_EmptyPartitionContributesNothing(t *testing.T) {
	store := tablestore.NewCountingStore(tablestore.NewMemoryStore())
	o := newTestOrchestrator(store, 10, OrchestratorConfig{SampleSizePerPartition: 3, Seed: 1})

	results, err := o.Run(context.Background(), o.BuildSpecs([]config.Partition{{Name: "Empty", Population: 0}, {Name: "One", Population: 1}}))
	require.NoError(t, err)

	assert.Zero(t, results[0].Batches)
	assert.Empty(t, results[0].Sampled)
	assert.Len(t, results[1].Sampled, 1)

	// the empty partition does not drag the average down
	sum := Summarize(results)
	assert.Equal(t, results[1].AverageSampledEntitySizeBytes, sum.AverageEntitySizeBytes)
}

// failingStore fails every insert for one partition.
type failingStore struct {
	*tablestore.MemoryStore
	failPartition string
	failAtBatch   int32
	calls         sync.Map // partition -> *atomic.Int32
}

func (f *failingStore) InsertBatch(ctx context.Context, pk string, entities []models.Entity) error {
	v, _ := f.calls.LoadOrStore(pk, new(atomic.Int32))
	n := v.(*atomic.Int32).Add(1)
	if pk == f.failPartition && n >= f.failAtBatch {
		return errors.New("503 server busy")
	}
	return f.MemoryStore.InsertBatch(ctx, pk, entities)
}

func TestOrchestrator_WaitAllReportsPartitionError(t *testing.T) {
	mem := tablestore.NewMemoryStore()
	store := &failingStore{MemoryStore: mem, failPartition: "B", failAtBatch: 2}
	o := newTestOrchestrator(store, 4, OrchestratorConfig{SampleSizePerPartition: 1, Seed: 3})

	results, err := o.Run(context.Background(), o.BuildSpecs([]config.Partition{{Name: "A", Population: 40}, {Name: "B", Population: 40}, {Name: "C", Population: 40}}))
	require.Error(t, err)
	assert.Nil(t, results)
	assert.ErrorIs(t, err, ErrPartitionFailed)

	var pe *PartitionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "B", pe.Partition)
	assert.Equal(t, 2, pe.Batch)
	assert.Contains(t, err.Error(), "503 server busy")

	// wait_all lets the healthy partitions finish
	assert.Equal(t, 40+40+4, mem.Len())
}

// blockingStore blocks inserts for every partition but one until the
// context is cancelled.
type blockingStore struct {
	*tablestore.MemoryStore
	failPartition string
}

func (b *blockingStore) InsertBatch(ctx context.Context, pk string, entities []models.Entity) error {
	if pk == b.failPartition {
		return errors.New("boom")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return errors.New("sibling was not cancelled")
	}
}

func TestOrchestrator_FailFastCancelsSiblings(t *testing.T) {
	store := &blockingStore{MemoryStore: tablestore.NewMemoryStore(), failPartition: "B"}
	o := newTestOrchestrator(store, 4, OrchestratorConfig{Seed: 3, FailurePolicy: config.FailureFailFast})

	start := time.Now()
	_, err := o.Run(context.Background(), o.BuildSpecs([]config.Partition{{Name: "A", Population: 8}, {Name: "B", Population: 8}, {Name: "C", Population: 8}}))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)

	var pe *PartitionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "B", pe.Partition)
}

func TestOrchestrator_CancelledContextStopsWorkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := newTestOrchestrator(tablestore.NewMemoryStore(), 4, OrchestratorConfig{Seed: 1})

	_, err := o.Run(ctx, o.BuildSpecs([]config.Partition{{Name: "A", Population: 8}}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrPartitionFailed)
}

// barrierStore admits inserts only once every partition has one in flight,
// and records whether any partition ever had two batches in flight.
type barrierStore struct {
	*tablestore.MemoryStore
	want     int
	mu       sync.Mutex
	inFlight map[string]int
	arrived  map[string]struct{}
	ready    chan struct{}
	overlap  atomic.Bool
}

func newBarrierStore(want int) *barrierStore {
	return &barrierStore{
		MemoryStore: tablestore.NewMemoryStore(),
		want:        want,
		inFlight:    make(map[string]int),
		arrived:     make(map[string]struct{}),
		ready:       make(chan struct{}),
	}
}

func (b *barrierStore) InsertBatch(ctx context.Context, pk string, entities []models.Entity) error {
	b.mu.Lock()
	b.inFlight[pk]++
	if b.inFlight[pk] > 1 {
		b.overlap.Store(true)
	}
	b.arrived[pk] = struct{}{}
	if len(b.arrived) == b.want {
		select {
		case <-b.ready:
		default:
			close(b.ready)
		}
	}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.inFlight[pk]--
		b.mu.Unlock()
	}()

	select {
	case <-b.ready:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("only %d partitions ran concurrently", len(b.arrived))
	}
	return b.MemoryStore.InsertBatch(ctx, pk, entities)
}

func TestOrchestrator_OneGoroutinePerPartition(t *testing.T) {
	const partitions = 64
	store := newBarrierStore(partitions)
	o := newTestOrchestrator(store, 5, OrchestratorConfig{Seed: 5})

	parts := make([]config.Partition, partitions)
	for i := range parts {
		parts[i] = config.Partition{Name: fmt.Sprintf("p%02d", i), Population: 20}
	}

	_, err := o.Run(context.Background(), o.BuildSpecs(parts))
	require.NoError(t, err)
	assert.False(t, store.overlap.Load(), "a partition had two batches in flight")
	assert.Equal(t, partitions*20, store.Len())
}

func TestUploader_RecordsLatencyAndSample(t *testing.T) {
	hist := stats.NewHistogram()
	up := NewUploader(tablestore.NewMemoryStore(), UploaderConfig{
		BatchSize:  3,
		NewFactory: personFactory(1),
		Latency:    hist,
	}, zerolog.Nop())

	spec := models.PartitionSpec{Name: "Umbria", Population: 7, SampleIndexes: map[int]struct{}{1: {}, 7: {}}}
	res, err := up.Upload(context.Background(), spec)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, int64(3), hist.Snapshot().Count)
	require.Len(t, res.Sampled, 2)
	assert.Equal(t, "Umbria", res.Sampled[0].PartitionKey)
	size := AzureTableSize{}
	want := float64(size.EntitySize(res.Sampled[0])+size.EntitySize(res.Sampled[1])) / 2
	assert.Equal(t, want, res.AverageSampledEntitySizeBytes)
}

func TestUploader_NilFactoryUsesDefault(t *testing.T) {
	store := tablestore.NewMemoryStore()
	up := NewUploader(store, UploaderConfig{BatchSize: 4}, zerolog.Nop())

	spec := models.PartitionSpec{Name: "Molise", Population: 9, SampleIndexes: map[int]struct{}{3: {}}}
	res, err := up.Upload(context.Background(), spec)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 9, store.Len())
	require.Len(t, res.Sampled, 1)
	assert.Equal(t, "Molise", res.Sampled[0].PartitionKey)
	assert.NotEmpty(t, res.Sampled[0].RowKey)
}

func TestAzureTableSize(t *testing.T) {
	e := models.Entity{
		PartitionKey: "Lazio",
		RowKey:       "0123456789",
		FirstName:    "Anna",
		LastName:     "Rossi",
		Address:      "VIA ROMA",
		TaxNumber:    "abc",
		Age:          30,
	}
	want := 4 + (5+10)*2 +
		8 + 9*2 + 4*2 +
		8 + 8*2 + 5*2 +
		8 + 7*2 + 8*2 +
		8 + 9*2 + 3*2 +
		8 + 3*2 + 4
	assert.Equal(t, want, AzureTableSize{}.EntitySize(e))
}

func TestSummarize_Empty(t *testing.T) {
	sum := Summarize(nil)
	assert.Zero(t, sum.TotalPopulation)
	assert.Zero(t, sum.AverageEntitySizeBytes)
	assert.Zero(t, sum.AverageEntitySizeKB())
}

func TestSummarize_AveragesPartitionAverages(t *testing.T) {
	sum := Summarize([]PartitionResult{
		{Population: 10, Sampled: make([]models.Entity, 1), AverageSampledEntitySizeBytes: 300},
		{Population: 5, Sampled: make([]models.Entity, 3), AverageSampledEntitySizeBytes: 500},
		{Population: 7},
	})
	assert.Equal(t, int64(22), sum.TotalPopulation)
	assert.Equal(t, 400.0, sum.AverageEntitySizeBytes)
	assert.Equal(t, 0.4, sum.AverageEntitySizeKB())
}

func TestPartitionError(t *testing.T) {
	cause := errors.New("timeout")
	err := error(&PartitionError{Partition: "Sicilia", Batch: 12, Err: cause})

	assert.ErrorIs(t, err, ErrPartitionFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, `partition "Sicilia" failed at batch 12: timeout`, err.Error())
}
