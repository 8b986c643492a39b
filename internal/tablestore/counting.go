package tablestore

import (
	"context"
	"sync/atomic"

	"github.com/basekick-labs/tablebench/pkg/models"
)

// CountingStore counts calls that reach the wrapped store.
type CountingStore struct {
	Store
	batches  atomic.Int64
	inserted atomic.Int64
	lookups  atomic.Int64
	misses   atomic.Int64
}

// NewCountingStore wraps store.
func NewCountingStore(store Store) *CountingStore {
	return &CountingStore{Store: store}
}

func (c *CountingStore) InsertBatch(ctx context.Context, partitionKey string, entities []models.Entity) error {
	err := c.Store.InsertBatch(ctx, partitionKey, entities)
	if err == nil {
		c.batches.Add(1)
		c.inserted.Add(int64(len(entities)))
	}
	return err
}

func (c *CountingStore) GetByKey(ctx context.Context, partitionKey, rowKey string) (models.Entity, bool, error) {
	e, found, err := c.Store.GetByKey(ctx, partitionKey, rowKey)
	if err == nil {
		c.lookups.Add(1)
		if !found {
			c.misses.Add(1)
		}
	}
	return e, found, err
}

// Counts is a snapshot of CountingStore's counters.
type Counts struct {
	Batches  int64
	Inserted int64
	Lookups  int64
	Misses   int64
}

func (c *CountingStore) Counts() Counts {
	return Counts{
		Batches:  c.batches.Load(),
		Inserted: c.inserted.Load(),
		Lookups:  c.lookups.Load(),
		Misses:   c.misses.Load(),
	}
}
