// Package dedupe filters repeated gateway deliveries by message id.
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "consignado:msg:"

// redisAPI is the part of *redis.Client used by Redis.
type redisAPI interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Redis remembers message ids in Redis with SET NX and a TTL, so several
// instances share one window.
type Redis struct {
	client redisAPI
	ttl    time.Duration
}

func NewRedis(client redisAPI, ttl time.Duration) (*Redis, error) {
	if client == nil {
		return nil, errors.New("dedupe: redis client must not be nil")
	}
	if ttl <= 0 {
		return nil, errors.New("dedupe: ttl must be positive")
	}
	return &Redis{client: client, ttl: ttl}, nil
}

// FirstSeen reports true the first time id is offered within the TTL.
func (r *Redis) FirstSeen(ctx context.Context, id string) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return true, nil
	}
	ok, err := r.client.SetNX(ctx, keyPrefix+id, "1", r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe: setnx: %w", err)
	}
	return ok, nil
}

// Forget releases id so a later delivery of it counts as first seen again.
func (r *Redis) Forget(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	if err := r.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("dedupe: del: %w", err)
	}
	return nil
}

// NewRedisClient parses url, connects and pings.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("dedupe: parse redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("dedupe: redis ping failed: %w", err)
	}
	return client, nil
}
