package tablestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/basekick-labs/tablebench/pkg/models"
	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// maxRowsPerStatement keeps multi-row INSERTs well below SQLite's
// host parameter limit.
const maxRowsPerStatement = 500

var entityColumns = []string{
	"partition_key", "row_key", "first_name", "last_name", "address", "age", "tax_number",
}

// SQLStore maps the table onto a relational table keyed by
// (partition_key, row_key). It serves both the sqlite3 and duckdb drivers.
type SQLStore struct {
	db     *sql.DB
	driver string
	table  string
	logger zerolog.Logger
}

// OpenSQLite opens (or creates) a SQLite database file.
func OpenSQLite(path, table string, logger zerolog.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite allows one writer; serialize at the pool instead of retrying on SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return newSQLStore(db, "sqlite3", table, logger)
}

// OpenDuckDB opens (or creates) a DuckDB database file. An empty path opens
// an in-memory database.
func OpenDuckDB(path, table string, logger zerolog.Logger) (*SQLStore, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb database: %w", err)
	}
	return newSQLStore(db, "duckdb", table, logger)
}

func newSQLStore(db *sql.DB, driver, table string, logger zerolog.Logger) (*SQLStore, error) {
	if err := ValidateTableName(table); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	return &SQLStore{
		db:     db,
		driver: driver,
		table:  table,
		logger: logger.With().Str("component", "sql-tablestore").Str("driver", driver).Logger(),
	}, nil
}

func (s *SQLStore) CreateTableIfAbsent(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		partition_key TEXT NOT NULL,
		row_key TEXT NOT NULL,
		first_name TEXT,
		last_name TEXT,
		address TEXT,
		age INTEGER,
		tax_number TEXT,
		PRIMARY KEY (partition_key, row_key)
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	s.logger.Info().Str("table", s.table).Msg("Table ready")
	return nil
}

// InsertBatch inserts all entities in one transaction.
func (s *SQLStore) InsertBatch(ctx context.Context, partitionKey string, entities []models.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	if err := checkBatch(partitionKey, entities); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for start := 0; start < len(entities); start += maxRowsPerStatement {
		chunk := entities[start:min(start+maxRowsPerStatement, len(entities))]
		query, args := s.insertStatement(chunk)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert batch for partition %s: %w", partitionKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch for partition %s: %w", partitionKey, err)
	}
	return nil
}

func (s *SQLStore) insertStatement(entities []models.Entity) (string, []any) {
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(entityColumns)), ", ") + ")"

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %q (%s) VALUES ", s.table, strings.Join(entityColumns, ", "))
	args := make([]any, 0, len(entities)*len(entityColumns))
	for i, e := range entities {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(row)
		args = append(args, e.PartitionKey, e.RowKey, e.FirstName, e.LastName, e.Address, e.Age, e.TaxNumber)
	}
	return b.String(), args
}

func (s *SQLStore) GetByKey(ctx context.Context, partitionKey, rowKey string) (models.Entity, bool, error) {
	query := fmt.Sprintf("SELECT %s FROM %q WHERE partition_key = ? AND row_key = ?",
		strings.Join(entityColumns, ", "), s.table)

	var e models.Entity
	err := s.db.QueryRowContext(ctx, query, partitionKey, rowKey).Scan(
		&e.PartitionKey, &e.RowKey, &e.FirstName, &e.LastName, &e.Address, &e.Age, &e.TaxNumber,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Entity{}, false, nil
	}
	if err != nil {
		return models.Entity{}, false, fmt.Errorf("failed to read %s/%s: %w", partitionKey, rowKey, err)
	}
	return e, true, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Type() string {
	if s.driver == "sqlite3" {
		return "sqlite"
	}
	return s.driver
}
