package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tanzawa/locationpicker/internal/geocode"
)

const defaultPrefix = "picker:geocode:"

// RedisCache shares geocode results between server instances.
type RedisCache struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

func NewRedis(ctx context.Context, redisURL string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisCache{Client: client, Prefix: defaultPrefix, TTL: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]geocode.Candidate, bool, error) {
	b, err := c.Client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var out []geocode.Candidate
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, false, err
	}
	if out == nil {
		out = []geocode.Candidate{}
	}
	return out, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, candidates []geocode.Candidate) error {
	if candidates == nil {
		candidates = []geocode.Candidate{}
	}
	b, err := json.Marshal(candidates)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, c.key(key), b, c.TTL).Err()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

func (c *RedisCache) key(k string) string {
	if c.Prefix == "" {
		return defaultPrefix + k
	}
	return c.Prefix + k
}
