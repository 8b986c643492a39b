package tablestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/basekick-labs/tablebench/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PostgresStore keeps the table in PostgreSQL and loads batches with COPY.
type PostgresStore struct {
	pool   *pgxpool.Pool
	table  string
	logger zerolog.Logger
}

// OpenPostgres connects a pool to dsn.
func OpenPostgres(ctx context.Context, dsn, table string, logger zerolog.Logger) (*PostgresStore, error) {
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &PostgresStore{
		pool:   pool,
		table:  table,
		logger: logger.With().Str("component", "postgres-tablestore").Logger(),
	}, nil
}

func (s *PostgresStore) ident() string {
	return pgx.Identifier{s.table}.Sanitize()
}

func (s *PostgresStore) CreateTableIfAbsent(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+s.ident()+` (
		partition_key TEXT NOT NULL,
		row_key TEXT NOT NULL,
		first_name TEXT,
		last_name TEXT,
		address TEXT,
		age INTEGER,
		tax_number TEXT,
		PRIMARY KEY (partition_key, row_key)
	)`)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	s.logger.Info().Str("table", s.table).Msg("Table ready")
	return nil
}

// InsertBatch copies the batch in. COPY is atomic, so a duplicate key
// rejects the whole batch.
func (s *PostgresStore) InsertBatch(ctx context.Context, partitionKey string, entities []models.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	if err := checkBatch(partitionKey, entities); err != nil {
		return err
	}

	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{s.table}, entityColumns,
		pgx.CopyFromSlice(len(entities), func(i int) ([]any, error) {
			e := entities[i]
			return []any{e.PartitionKey, e.RowKey, e.FirstName, e.LastName, e.Address, e.Age, e.TaxNumber}, nil
		}))
	if err != nil {
		return fmt.Errorf("failed to copy batch for partition %s: %w", partitionKey, err)
	}
	if n != int64(len(entities)) {
		return fmt.Errorf("copied %d of %d entities for partition %s", n, len(entities), partitionKey)
	}
	return nil
}

func (s *PostgresStore) GetByKey(ctx context.Context, partitionKey, rowKey string) (models.Entity, bool, error) {
	var e models.Entity
	err := s.pool.QueryRow(ctx,
		`SELECT partition_key, row_key, first_name, last_name, address, age, tax_number FROM `+s.ident()+
			` WHERE partition_key = $1 AND row_key = $2`,
		partitionKey, rowKey,
	).Scan(&e.PartitionKey, &e.RowKey, &e.FirstName, &e.LastName, &e.Address, &e.Age, &e.TaxNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Entity{}, false, nil
	}
	if err != nil {
		return models.Entity{}, false, fmt.Errorf("failed to read %s/%s: %w", partitionKey, rowKey, err)
	}
	return e, true, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Type() string {
	return "postgres"
}
