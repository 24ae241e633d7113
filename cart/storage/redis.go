package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	inErrors "github.com/Alturino/storefront/internal/errors"
)

type RedisStorage struct {
	client *redis.Client
}

func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

func (r *RedisStorage) Get(c context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(c, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, inErrors.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed getting key=%s from redis with error=%w", key, err)
	}
	return value, nil
}

func (r *RedisStorage) Set(c context.Context, key string, value []byte) error {
	if err := r.client.Set(c, key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed setting key=%s to redis with error=%w", key, err)
	}
	return nil
}
