// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package ratelimit throttles how often a password reset can be requested per address.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jimuzhe/doNow/internal/security"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited is returned when the key used up its budget for the current window.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps failures talking to Redis.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Limiter decides whether another action is allowed for a key.
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

// Noop allows everything. It is used when no Redis is configured.
type Noop struct{}

// Allow always permits the action.
func (Noop) Allow(context.Context, string) error { return nil }

// RedisLimiter is a fixed-window counter stored in Redis.
type RedisLimiter struct {
	redis  redis.UniversalClient
	prefix string
	max    int
	window time.Duration
}

// NewRedis creates a limiter allowing max actions per key within window.
func NewRedis(client redis.UniversalClient, prefix string, maxActions int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		redis:  client,
		prefix: prefix,
		max:    maxActions,
		window: window,
	}
}

// Dial connects to the Redis server at url and checks that it answers.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return client, nil
}

// Allow counts one action for key. Keys are hashed so raw addresses never reach Redis.
func (l *RedisLimiter) Allow(ctx context.Context, key string) error {
	redisKey := l.prefix + security.HashToken(key)

	count, err := l.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count > int64(l.max) {
		return ErrRateLimited
	}
	return nil
}
