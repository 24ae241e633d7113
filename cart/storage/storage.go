package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/log"
)

const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
)

// Storage is a key value slot store. Get returns errors.ErrCacheMiss when key holds nothing.
type Storage interface {
	Get(c context.Context, key string) ([]byte, error)
	Set(c context.Context, key string, value []byte) error
}

func NewStorage(c context.Context, cfg config.Cart, cache *redis.Client) (Storage, error) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "storage NewStorage").
		Str("driver", cfg.Storage).
		Logger()

	logger.Info().Msg("initializing cart storage")
	switch cfg.Storage {
	case "", DriverMemory:
		return NewMemoryStorage(), nil
	case DriverFile:
		return NewFileStorage(cfg.Directory)
	case DriverRedis:
		if cache == nil {
			return nil, fmt.Errorf("cart storage driver=%s requires a redis client", cfg.Storage)
		}
		return NewRedisStorage(cache), nil
	}
	return nil, fmt.Errorf("unknown cart storage driver=%s", cfg.Storage)
}
