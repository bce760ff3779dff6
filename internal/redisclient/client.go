package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"configurator-service/internal/models"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and checks the server is reachable
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// NewClientFromRedis wraps an existing go-redis client
func NewClientFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Ping checks the Redis connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func catalogKey(ident models.CategoryIdentifier) string {
	return "catalog:" + ident.String()
}

// GetCategoryConfig returns the cached configuration of a category, or nil on a miss
func (c *Client) GetCategoryConfig(ctx context.Context, ident models.CategoryIdentifier) (*models.CategoryConfig, error) {
	data, err := c.rdb.Get(ctx, catalogKey(ident)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog cache: %w", err)
	}

	var cfg models.CategoryConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode cached catalog: %w", err)
	}
	return &cfg, nil
}

// SetCategoryConfig caches a configuration under both its id and its name
func (c *Client) SetCategoryConfig(ctx context.Context, cfg *models.CategoryConfig, ttl time.Duration) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}

	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, catalogKey(models.CategoryIdentifier{ID: cfg.Category.ID}), data, ttl)
	pipe.Set(ctx, catalogKey(models.CategoryIdentifier{Name: cfg.Category.Name}), data, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write catalog cache: %w", err)
	}
	return nil
}

// SetIdempotencyKey stores the JSON encoded value of an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode idempotent result: %w", err)
	}
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), data, ttl).Err()
}

// GetIdempotencyKey decodes the value stored under an idempotency key into
// dest. It reports false when the key is unknown.
func (c *Client) GetIdempotencyKey(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, fmt.Sprintf("idempotency:%s", key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode idempotent result: %w", err)
	}
	return true, nil
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}
