package store

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis strings. Values never expire.
type RedisStore struct {
	keyLocks

	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store. Prefix may be empty.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "clearpolicy:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) k(key string) string {
	return r.prefix + key
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, r.k(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.k(key), value, 0).Err()
}
