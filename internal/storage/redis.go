package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Get when no entry exists for a key.
var ErrCacheMiss = errors.New("storage: cache miss")

// RedisCache memoizes seeded ensemble runs. A seeded request is fully
// determined by its model, controls and seed, so its export can be replayed.
type RedisCache struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type CacheOption func(*RedisCache)

// WithTTL sets the expiration of cached runs. Zero keeps them forever.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *RedisCache) {
		c.ttl = ttl
	}
}

func WithPrefix(prefix string) CacheOption {
	return func(c *RedisCache) {
		c.prefix = prefix
	}
}

func NewRedisCache(address, password string, db int, opts ...CacheOption) *RedisCache {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisCacheFromClient(rdb, opts...)
}

func NewRedisCacheFromClient(client *backend.Client, opts ...CacheOption) *RedisCache {
	c := &RedisCache{
		client: client,
		prefix: "stochsim:run:",
		ttl:    time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key derives a cache key from any JSON-encodable request.
func Key(request any) (string, error) {
	data, err := json.Marshal(request)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (*ExportData, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to read from redis: %w", err)
	}

	var data ExportData
	if err := json.Unmarshal(val, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached run: %w", err)
	}
	return &data, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, data *ExportData) error {
	val, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, val, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
