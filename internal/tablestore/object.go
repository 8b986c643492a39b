package tablestore

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/basekick-labs/tablebench/internal/objectstore"
	"github.com/basekick-labs/tablebench/pkg/models"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ObjectStore keeps one msgpack object per entity at
// <table>/<partitionKey>/<rowKey>.msgpack on an object storage backend.
type ObjectStore struct {
	backend     objectstore.Backend
	table       string
	concurrency int
	logger      zerolog.Logger
}

// NewObjectStore wraps backend. concurrency bounds the parallel object
// writes of one batch.
func NewObjectStore(backend objectstore.Backend, table string, concurrency int, logger zerolog.Logger) (*ObjectStore, error) {
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &ObjectStore{
		backend:     backend,
		table:       table,
		concurrency: concurrency,
		logger:      logger.With().Str("component", "object-tablestore").Str("backend", backend.Type()).Logger(),
	}, nil
}

func (s *ObjectStore) objectPath(partitionKey, rowKey string) string {
	return s.table + "/" + url.PathEscape(partitionKey) + "/" + url.PathEscape(rowKey) + ".msgpack"
}

func (s *ObjectStore) CreateTableIfAbsent(ctx context.Context) error {
	if err := s.backend.Ensure(ctx); err != nil {
		return fmt.Errorf("failed to prepare %s backend: %w", s.backend.Type(), err)
	}
	return nil
}

// InsertBatch creates one object per entity in parallel and waits for all of
// them. An existing key fails the batch with ErrDuplicateKey. Object storage
// has no multi-object transaction, so objects of the batch written before the
// failure stay in place.
func (s *ObjectStore) InsertBatch(ctx context.Context, partitionKey string, entities []models.Entity) error {
	if err := checkBatch(partitionKey, entities); err != nil {
		return err
	}
	if err := checkUniqueRowKeys(entities); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, e := range entities {
		g.Go(func() error {
			data, err := encodeEntity(e)
			if err != nil {
				return err
			}
			err = s.backend.Create(gctx, s.objectPath(e.PartitionKey, e.RowKey), data)
			if errors.Is(err, objectstore.ErrExists) {
				return fmt.Errorf("%w: %s already exists", ErrDuplicateKey, e.Key())
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to write batch for partition %s: %w", partitionKey, err)
	}
	return nil
}

func (s *ObjectStore) GetByKey(ctx context.Context, partitionKey, rowKey string) (models.Entity, bool, error) {
	data, err := s.backend.Get(ctx, s.objectPath(partitionKey, rowKey))
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return models.Entity{}, false, nil
		}
		return models.Entity{}, false, err
	}
	e, err := decodeEntity(data)
	if err != nil {
		return models.Entity{}, false, err
	}
	return e, true, nil
}

func (s *ObjectStore) Close() error {
	return s.backend.Close()
}

func (s *ObjectStore) Type() string {
	return s.backend.Type()
}
