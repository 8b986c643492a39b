package tablestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/basekick-labs/tablebench/pkg/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisStore keeps one hash per partition, <table>:<partitionKey>, with the
// row key as field and the msgpack-encoded entity as value.
type RedisStore struct {
	client *redis.Client
	table  string
	logger zerolog.Logger
}

// RedisOptions selects the server.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, opts RedisOptions, table string, logger zerolog.Logger) (*RedisStore, error) {
	if err := ValidateTableName(table); err != nil {
		return nil, err
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return NewRedisStore(client, table, logger), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, table string, logger zerolog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		table:  table,
		logger: logger.With().Str("component", "redis-tablestore").Logger(),
	}
}

// insertIfAbsent sets every field/value pair of ARGV on KEYS[1] unless one of
// the fields already exists, in which case it writes nothing and returns that
// field.
var insertIfAbsent = redis.NewScript(`
for i = 1, #ARGV, 2 do
	if redis.call('HEXISTS', KEYS[1], ARGV[i]) == 1 then
		return ARGV[i]
	end
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return false
`)

func (s *RedisStore) key(partitionKey string) string {
	return s.table + ":" + partitionKey
}

// CreateTableIfAbsent is a no-op: hashes are created on first write.
func (s *RedisStore) CreateTableIfAbsent(ctx context.Context) error {
	return nil
}

// InsertBatch writes the batch atomically with a server-side script. A row
// key that already exists fails the whole batch with ErrDuplicateKey.
func (s *RedisStore) InsertBatch(ctx context.Context, partitionKey string, entities []models.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	if err := checkBatch(partitionKey, entities); err != nil {
		return err
	}
	if err := checkUniqueRowKeys(entities); err != nil {
		return err
	}

	values := make([]any, 0, 2*len(entities))
	for _, e := range entities {
		data, err := encodeEntity(e)
		if err != nil {
			return err
		}
		values = append(values, e.RowKey, data)
	}

	existing, err := insertIfAbsent.Run(ctx, s.client, []string{s.key(partitionKey)}, values...).Text()
	switch {
	case errors.Is(err, redis.Nil):
		return nil
	case err != nil:
		return fmt.Errorf("failed to write batch for partition %s: %w", partitionKey, err)
	default:
		return fmt.Errorf("%w: %s/%s already exists", ErrDuplicateKey, partitionKey, existing)
	}
}

func (s *RedisStore) GetByKey(ctx context.Context, partitionKey, rowKey string) (models.Entity, bool, error) {
	data, err := s.client.HGet(ctx, s.key(partitionKey), rowKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Entity{}, false, nil
	}
	if err != nil {
		return models.Entity{}, false, fmt.Errorf("failed to read %s/%s: %w", partitionKey, rowKey, err)
	}
	e, err := decodeEntity(data)
	if err != nil {
		return models.Entity{}, false, err
	}
	return e, true, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Type() string {
	return "redis"
}
