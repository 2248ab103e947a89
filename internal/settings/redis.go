package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"toolshed-backend/internal/logger"
)

// RedisSource reads settings from a single Redis hash.
type RedisSource struct {
	client *redis.Client
	key    string
}

func NewRedisSource(client *redis.Client, key string) *RedisSource {
	return &RedisSource{client: client, key: key}
}

// NewRedisClient builds a client from a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (s *RedisSource) Lookup(ctx context.Context, field string) (string, bool, error) {
	logger.ExternalServiceCall("redis", "HGET", "key", s.key, "field", field)
	v, err := s.client.HGet(ctx, s.key, field).Result()
	if errors.Is(err, redis.Nil) {
		logger.ExternalServiceResult("redis", "HGET", nil, "found", false)
		return "", false, nil
	}
	logger.ExternalServiceResult("redis", "HGET", err)
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", field, err)
	}
	return v, true, nil
}

// Set writes one setting. Used by operators and seed scripts.
func (s *RedisSource) Set(ctx context.Context, field, value string) error {
	if err := s.client.HSet(ctx, s.key, field, value).Err(); err != nil {
		return fmt.Errorf("failed to write setting %s: %w", field, err)
	}
	return nil
}
