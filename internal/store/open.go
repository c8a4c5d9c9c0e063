package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/nhle/deadline-tracker/internal/model"
)

// Open builds the DocumentStore selected by cfg.Driver.
func Open(ctx context.Context, cfg model.StorageConfig) (DocumentStore, error) {
	switch cfg.Driver {
	case model.StorageSQLite, "":
		return NewSQLiteStore(cfg.Path)
	case model.StorageFile:
		return NewFileStore(cfg.Path)
	case model.StorageRedis:
		s := NewRedisStore(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		}, cfg.KeyPrefix)
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
