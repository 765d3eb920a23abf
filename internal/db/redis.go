package db

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/metabuild-lab/labcore/internal/config"
)

// NewRedisClient initializes and returns a Redis client, or nil when the
// cache is disabled in configuration.
func NewRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       0,
	})

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
