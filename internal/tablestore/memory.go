package tablestore

import (
	"context"
	"fmt"
	"sync"

	"github.com/basekick-labs/tablebench/pkg/models"
)

// MemoryStore keeps the table in process memory. It is used for dry runs
// and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[string]map[string]models.Entity
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{partitions: make(map[string]map[string]models.Entity)}
}

func (s *MemoryStore) CreateTableIfAbsent(ctx context.Context) error {
	return nil
}

// InsertBatch adds the entities atomically. A duplicate key fails the whole
// batch, like an entity group transaction.
func (s *MemoryStore) InsertBatch(ctx context.Context, partitionKey string, entities []models.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkBatch(partitionKey, entities); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	part := s.partitions[partitionKey]
	if part == nil {
		part = make(map[string]models.Entity)
		s.partitions[partitionKey] = part
	}
	if err := checkUniqueRowKeys(entities); err != nil {
		return err
	}
	for _, e := range entities {
		if _, exists := part[e.RowKey]; exists {
			return fmt.Errorf("%w: %s already exists", ErrDuplicateKey, e.Key())
		}
	}
	for _, e := range entities {
		part[e.RowKey] = e
	}
	return nil
}

func (s *MemoryStore) GetByKey(ctx context.Context, partitionKey, rowKey string) (models.Entity, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Entity{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.partitions[partitionKey][rowKey]
	return e, ok, nil
}

// Len returns the number of stored entities.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.partitions {
		n += len(p)
	}
	return n
}

// Delete removes one entity. Tests use it to break the sample invariant.
func (s *MemoryStore) Delete(partitionKey, rowKey string) {
	s.mu.Lock()
	delete(s.partitions[partitionKey], rowKey)
	s.mu.Unlock()
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) Type() string {
	return "memory"
}
