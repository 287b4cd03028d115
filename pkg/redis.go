package pkg

import (
	"context"
	"encoding/json"
	"errors"
	"studio"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisDisabled is returned by the helpers when no Redis client was configured.
var ErrRedisDisabled = errors.New("redis is not configured")

// RedisEnabled reports whether InitConfig connected a client.
func RedisEnabled() bool {
	return studio.Redis != nil
}

// RedisSet stores a value in Redis with a TTL. The value is JSON-serialized.
func RedisSet(key string, value any, ttl time.Duration) error {
	if studio.Redis == nil {
		return ErrRedisDisabled
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return studio.Redis.Set(ctx, key, data, ttl).Err()
}

// RedisGet retrieves a value from Redis and JSON-deserializes it into dest.
// Returns redis.Nil if the key does not exist.
func RedisGet(key string, dest any) error {
	if studio.Redis == nil {
		return ErrRedisDisabled
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := studio.Redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(data, dest)
}

// RedisDelete removes a key from Redis.
func RedisDelete(key string) error {
	if studio.Redis == nil {
		return ErrRedisDisabled
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return studio.Redis.Del(ctx, key).Err()
}

// IsRedisNil returns true if the error is a redis key-not-found error.
func IsRedisNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
