package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookings/internal/config"
	"bookings/internal/models"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds a client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// RedisBusyCache stores busy windows as JSON strings with a TTL.
type RedisBusyCache struct {
	client *redis.Client
}

func NewRedisBusyCache(client *redis.Client) *RedisBusyCache {
	return &RedisBusyCache{client: client}
}

func (r *RedisBusyCache) GetBusy(ctx context.Context, key string) (*models.BusyWindow, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get busy window from redis: %w", err)
	}

	var window models.BusyWindow
	if err := json.Unmarshal([]byte(val), &window); err != nil {
		return nil, fmt.Errorf("failed to unmarshal busy window: %w", err)
	}
	return &window, nil
}

func (r *RedisBusyCache) SetBusy(ctx context.Context, key string, window models.BusyWindow, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(window)
	if err != nil {
		return fmt.Errorf("failed to marshal busy window: %w", err)
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set busy window in redis: %w", err)
	}
	return nil
}

// DeleteBusy removes all keys under prefix. Keys are found with SCAN so the
// server is never blocked by a KEYS call.
func (r *RedisBusyCache) DeleteBusy(ctx context.Context, prefix string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	iter := r.client.Scan(ctx, 0, globEscaper.Replace(prefix)+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan busy windows: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete busy windows: %w", err)
	}
	return nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// Ping checks the connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
