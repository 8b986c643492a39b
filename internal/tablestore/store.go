// Package tablestore is the boundary between the benchmark and the
// partitioned key-value store under test.
package tablestore

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/basekick-labs/tablebench/pkg/models"
)

// Store is a partitioned key-value table. Implementations are safe for
// concurrent use and shared by every partition and query worker.
type Store interface {
	// CreateTableIfAbsent creates the table; an existing table is not an error.
	CreateTableIfAbsent(ctx context.Context) error

	// InsertBatch writes entities that all belong to partitionKey. It
	// returns only after the store has acknowledged every entity.
	InsertBatch(ctx context.Context, partitionKey string, entities []models.Entity) error

	// GetByKey performs a point read. A missing entity is reported as
	// (zero, false, nil), never as an error.
	GetByKey(ctx context.Context, partitionKey, rowKey string) (models.Entity, bool, error)

	Close() error

	Type() string
}

var (
	// ErrInvalidTableName is returned for names that are unsafe to embed in
	// SQL identifiers, Redis keys or object paths.
	ErrInvalidTableName = errors.New("invalid table name")

	// ErrMixedPartition is returned when a batch carries an entity whose
	// partition key differs from the batch's.
	ErrMixedPartition = errors.New("batch mixes partition keys")

	// ErrDuplicateKey is returned when a batch would overwrite an existing
	// (partitionKey, rowKey) or names the same row key twice.
	ErrDuplicateKey = errors.New("duplicate entity key")
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{2,62}$`)

// ValidateTableName checks name against the common subset accepted by every
// backend.
func ValidateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must start with a letter and contain 3-63 letters, digits or underscores", ErrInvalidTableName, name)
	}
	return nil
}

// checkBatch verifies that every entity belongs to partitionKey.
func checkBatch(partitionKey string, entities []models.Entity) error {
	for _, e := range entities {
		if e.PartitionKey != partitionKey {
			return fmt.Errorf("%w: %q in batch for %q", ErrMixedPartition, e.PartitionKey, partitionKey)
		}
	}
	return nil
}

// checkUniqueRowKeys rejects a batch that names a row key more than once.
func checkUniqueRowKeys(entities []models.Entity) error {
	seen := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		if _, dup := seen[e.RowKey]; dup {
			return fmt.Errorf("%w: %s appears twice in batch", ErrDuplicateKey, e.Key())
		}
		seen[e.RowKey] = struct{}{}
	}
	return nil
}
