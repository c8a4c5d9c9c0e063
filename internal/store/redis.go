package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each collection as one JSON array value under
// <prefix><collection>. A single SET replaces the whole collection.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore wraps a client built from opts.
func NewRedisStore(opts *redis.Options, prefix string) *RedisStore {
	return &RedisStore{rdb: redis.NewClient(opts), prefix: prefix}
}

// Ping verifies the server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return nil
}

func (s *RedisStore) key(collection string) string {
	return s.prefix + collection
}

// ReadAll fetches and decodes the collection. A missing key is an empty
// collection.
func (s *RedisStore) ReadAll(
	ctx context.Context,
	collection string,
) ([]json.RawMessage, error) {
	blob, err := s.rdb.Get(ctx, s.key(collection)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading collection %s from redis: %w", collection, err)
	}

	return decodeArray(collection, blob)
}

// WriteAll replaces the collection value.
func (s *RedisStore) WriteAll(
	ctx context.Context,
	collection string,
	docs []json.RawMessage,
) error {
	blob, err := encodeArray(docs)
	if err != nil {
		return fmt.Errorf("encoding collection %s: %w", collection, err)
	}

	if err := s.rdb.Set(ctx, s.key(collection), blob, 0).Err(); err != nil {
		return fmt.Errorf("writing collection %s to redis: %w", collection, err)
	}
	return nil
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
