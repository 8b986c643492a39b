package tablestore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/basekick-labs/tablebench/internal/circuitbreaker"
	"github.com/basekick-labs/tablebench/pkg/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnavailable = errors.New("service unavailable")

// flakyStore fails the first failN calls of each kind.
type flakyStore struct {
	*MemoryStore
	failN   int32
	inserts atomic.Int32
	gets    atomic.Int32
}

func (f *flakyStore) InsertBatch(ctx context.Context, pk string, entities []models.Entity) error {
	if f.inserts.Add(1) <= f.failN {
		return errUnavailable
	}
	return f.MemoryStore.InsertBatch(ctx, pk, entities)
}

func (f *flakyStore) GetByKey(ctx context.Context, pk, rk string) (models.Entity, bool, error) {
	if f.gets.Add(1) <= f.failN {
		return models.Entity{}, false, errUnavailable
	}
	return f.MemoryStore.GetByKey(ctx, pk, rk)
}

func fastRetry(retries, maxFailures int) ResilientConfig {
	return ResilientConfig{
		MaxRetries:    retries,
		RetryDelay:    time.Millisecond,
		RetryMaxDelay: 2 * time.Millisecond,
		MaxFailures:   maxFailures,
		Cooldown:      time.Hour,
	}
}

func TestResilientStore_RetriesTransientFailures(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore(), failN: 2}
	s := NewResilientStore(inner, fastRetry(3, 10), zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, s.InsertBatch(ctx, "A", batchOf("A", 0, 2)))
	assert.EqualValues(t, 3, inner.inserts.Load())

	got, found, err := s.GetByKey(ctx, "A", person("A", 1).RowKey)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, person("A", 1), got)
	assert.Equal(t, "memory", s.Type())
}

func TestResilientStore_GivesUp(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore(), failN: 100}
	s := NewResilientStore(inner, fastRetry(2, 100), zerolog.Nop())

	err := s.InsertBatch(context.Background(), "A", batchOf("A", 0, 1))
	assert.ErrorIs(t, err, errUnavailable)
	assert.EqualValues(t, 3, inner.inserts.Load())
}

func TestResilientStore_OpenCircuitStopsRetrying(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore(), failN: 100}
	s := NewResilientStore(inner, fastRetry(5, 2), zerolog.Nop())

	err := s.InsertBatch(context.Background(), "A", batchOf("A", 0, 1))
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.EqualValues(t, 2, inner.inserts.Load())
}

func TestResilientStore_MissIsNotAFailure(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore()}
	s := NewResilientStore(inner, fastRetry(3, 1), zerolog.Nop())

	for range 5 {
		_, found, err := s.GetByKey(context.Background(), "A", "nope")
		require.NoError(t, err)
		assert.False(t, found)
	}
	assert.EqualValues(t, 5, inner.gets.Load())
}

func TestResilientStore_StopsOnCancel(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore(), failN: 100}
	s := NewResilientStore(inner, ResilientConfig{
		MaxRetries:  10,
		RetryDelay:  time.Hour,
		MaxFailures: 100,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	err := s.InsertBatch(ctx, "A", batchOf("A", 0, 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCountingStore(t *testing.T) {
	s := NewCountingStore(NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, s.InsertBatch(ctx, "A", batchOf("A", 0, 4)))
	require.NoError(t, s.InsertBatch(ctx, "A", batchOf("A", 4, 2)))
	require.Error(t, s.InsertBatch(ctx, "A", batchOf("A", 0, 1)))

	_, _, err := s.GetByKey(ctx, "A", person("A", 0).RowKey)
	require.NoError(t, err)
	_, _, err = s.GetByKey(ctx, "A", "missing")
	require.NoError(t, err)

	assert.Equal(t, Counts{Batches: 2, Inserted: 6, Lookups: 2, Misses: 1}, s.Counts())
}
