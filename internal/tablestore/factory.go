package tablestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/basekick-labs/tablebench/internal/config"
	"github.com/basekick-labs/tablebench/internal/objectstore"
	"github.com/rs/zerolog"
)

// Open builds the store selected by cfg.Store.Backend for cfg.Bench.TableName.
// When store.max_retries is positive the store is wrapped in a ResilientStore.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Store, error) {
	store, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	sc := cfg.Store
	if sc.MaxRetries > 0 {
		logger.Info().
			Int("max_retries", sc.MaxRetries).
			Int("breaker_max_failures", sc.BreakerMaxFailures).
			Msg("Store calls will be retried")
		return NewResilientStore(store, ResilientConfig{
			MaxRetries:  sc.MaxRetries,
			RetryDelay:  time.Duration(sc.RetryDelayMS) * time.Millisecond,
			MaxFailures: sc.BreakerMaxFailures,
		}, logger), nil
	}
	return store, nil
}

func openBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Store, error) {
	table := cfg.Bench.TableName
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}
	sc := cfg.Store

	switch sc.Backend {
	case "memory":
		return NewMemoryStore(), nil

	case "aztable":
		return OpenAzureTable(AzureTableConfig{
			ConnectionString:   sc.AzureConnectionString,
			AccountName:        sc.AzureAccountName,
			AccountKey:         sc.AzureAccountKey,
			SASToken:           sc.AzureSASToken,
			UseManagedIdentity: sc.AzureUseManagedIdentity,
			Endpoint:           sc.AzureEndpoint,
		}, table, logger)

	case "sqlite":
		if err := ensureParentDir(sc.SQLitePath); err != nil {
			return nil, err
		}
		return OpenSQLite(sc.SQLitePath, table, logger)

	case "duckdb":
		if err := ensureParentDir(sc.DuckDBPath); err != nil {
			return nil, err
		}
		return OpenDuckDB(sc.DuckDBPath, table, logger)

	case "postgres":
		return OpenPostgres(ctx, sc.PostgresDSN, table, logger)

	case "redis":
		return OpenRedis(ctx, RedisOptions{
			Addr:     sc.RedisAddr,
			Password: sc.RedisPassword,
			DB:       sc.RedisDB,
		}, table, logger)

	case "local", "s3", "azblob":
		backend, err := openObjectBackend(ctx, sc, logger)
		if err != nil {
			return nil, err
		}
		return NewObjectStore(backend, table, sc.BlobWriteConcurrency, logger)

	default:
		return nil, fmt.Errorf("unknown store backend %q", sc.Backend)
	}
}

func openObjectBackend(ctx context.Context, sc config.StoreConfig, logger zerolog.Logger) (objectstore.Backend, error) {
	switch sc.Backend {
	case "local":
		return objectstore.NewLocalBackend(sc.LocalPath, logger)
	case "s3":
		return objectstore.NewS3Backend(ctx, objectstore.S3Config{
			Bucket:    sc.S3Bucket,
			Region:    sc.S3Region,
			Endpoint:  sc.S3Endpoint,
			AccessKey: sc.S3AccessKey,
			SecretKey: sc.S3SecretKey,
			UseSSL:    sc.S3UseSSL,
			PathStyle: sc.S3PathStyle,
		}, logger)
	default:
		return objectstore.NewAzureBlobBackend(objectstore.AzureBlobConfig{
			ConnectionString:   sc.AzureConnectionString,
			AccountName:        sc.AzureAccountName,
			AccountKey:         sc.AzureAccountKey,
			SASToken:           sc.AzureSASToken,
			UseManagedIdentity: sc.AzureUseManagedIdentity,
			ContainerName:      sc.AzureContainer,
			Endpoint:           sc.AzureEndpoint,
		}, logger)
	}
}

func ensureParentDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return nil
}
