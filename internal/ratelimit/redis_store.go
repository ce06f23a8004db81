package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maheshrc27/postflow/internal/models"
)

// RedisStore keeps counters in Redis so every process shares one budget.
type RedisStore struct {
	rdb redis.Cmdable
}

func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func limitsKey(platform models.Platform) string {
	return "ratelimit:limits:" + string(platform)
}

// Incr creates the counter with its expiry only if absent, then increments it,
// inside one MULTI so concurrent callers never lose an increment.
func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, ttl)
		incr = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return incr.Val(), nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	return n, nil
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("ttl %s: %w", key, err)
	}
	// -2 missing, -1 no expiry
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (s *RedisStore) SaveLimits(ctx context.Context, platform models.Platform, limits models.RateLimits) error {
	err := s.rdb.HSet(ctx, limitsKey(platform),
		"minute", limits.Minute,
		"hour", limits.Hour,
		"day", limits.Day,
	).Err()
	if err != nil {
		return fmt.Errorf("save limits for %s: %w", platform, err)
	}
	return nil
}

func (s *RedisStore) LoadLimits(ctx context.Context, platform models.Platform) (models.RateLimits, bool, error) {
	fields, err := s.rdb.HGetAll(ctx, limitsKey(platform)).Result()
	if err != nil {
		return models.RateLimits{}, false, fmt.Errorf("load limits for %s: %w", platform, err)
	}
	if len(fields) == 0 {
		return models.RateLimits{}, false, nil
	}

	var limits models.RateLimits
	for name, dst := range map[string]*int{"minute": &limits.Minute, "hour": &limits.Hour, "day": &limits.Day} {
		if v, ok := fields[name]; ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return models.RateLimits{}, false, fmt.Errorf("limits for %s: bad %s value %q", platform, name, v)
			}
			*dst = n
		}
	}
	return limits, true, nil
}
