package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	evaluation "falldetect/internal/evaluation/domain"
)

const defaultKeyPrefix = "falldetect:matrix:"

// RedisCache shares matrices between processes through Redis.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedisCache constructs a RedisCache. A zero ttl keeps entries forever.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) (*RedisCache, error) {
	if client == nil {
		return nil, errors.New("redis cache: nil client")
	}
	return &RedisCache{client: client, ttl: ttl, prefix: defaultKeyPrefix}, nil
}

// NewRedisCacheFromURL parses a redis:// URL and pings the server.
func NewRedisCacheFromURL(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisCache(client, ttl)
}

// Get returns a cached matrix.
func (c *RedisCache) Get(ctx context.Context, key string) (evaluation.ConfusionMatrix, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return evaluation.ConfusionMatrix{}, false, nil
	}
	if err != nil {
		return evaluation.ConfusionMatrix{}, false, err
	}
	var m evaluation.ConfusionMatrix
	if err := json.Unmarshal(raw, &m); err != nil {
		return evaluation.ConfusionMatrix{}, false, err
	}
	return m, true, nil
}

// Set stores a matrix.
func (c *RedisCache) Set(ctx context.Context, key string, m evaluation.ConfusionMatrix) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, raw, c.ttl).Err()
}

// Close releases the client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
