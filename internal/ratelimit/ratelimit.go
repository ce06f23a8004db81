// Package ratelimit enforces per-platform call budgets over fixed minute, hour and day windows.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/telemetry"
)

type window struct {
	name   string
	length time.Duration
	limit  func(models.RateLimits) int
}

// Windows are checked in this order; ShouldWait reports the first exhausted one.
var windows = []window{
	{"minute", time.Minute, func(l models.RateLimits) int { return l.Minute }},
	{"hour", time.Hour, func(l models.RateLimits) int { return l.Hour }},
	{"day", 24 * time.Hour, func(l models.RateLimits) int { return l.Day }},
}

func counterKey(platform models.Platform, action, window string) string {
	return fmt.Sprintf("ratelimit:%s:%s:%s", platform, action, window)
}

// Store holds self-expiring counters and persisted limit overrides.
type Store interface {
	// Incr atomically adds one to key, creating it with the given ttl. The ttl
	// of an existing counter is left unchanged.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
	// TTL returns the time until key expires, or zero if it does not exist.
	TTL(ctx context.Context, key string) (time.Duration, error)
	SaveLimits(ctx context.Context, platform models.Platform, limits models.RateLimits) error
	LoadLimits(ctx context.Context, platform models.Platform) (models.RateLimits, bool, error)
}

// DefaultsFunc returns the built-in budget of a platform.
type DefaultsFunc func(models.Platform) models.RateLimits

type RateLimiter interface {
	CheckLimit(ctx context.Context, platform models.Platform, action string) (bool, error)
	Increment(ctx context.Context, platform models.Platform, action string) error
	GetRemaining(ctx context.Context, platform models.Platform, action string) (models.RateLimits, error)
	ShouldWait(ctx context.Context, platform models.Platform, action string) (time.Duration, error)
	SetPlatformLimits(ctx context.Context, platform models.Platform, limits models.RateLimits) error
	GetPlatformLimits(ctx context.Context, platform models.Platform) (models.RateLimits, error)
}

type rateLimiter struct {
	store    Store
	defaults DefaultsFunc
	logger   *slog.Logger
}

func NewRateLimiter(store Store, defaults DefaultsFunc, logger *slog.Logger) RateLimiter {
	if defaults == nil {
		defaults = func(models.Platform) models.RateLimits { return models.RateLimits{} }
	}
	return &rateLimiter{
		store:    store,
		defaults: defaults,
		logger:   telemetry.Logger(logger),
	}
}

// GetPlatformLimits returns the operator override if one is stored, else the default.
func (l *rateLimiter) GetPlatformLimits(ctx context.Context, platform models.Platform) (models.RateLimits, error) {
	limits, ok, err := l.store.LoadLimits(ctx, platform)
	if err != nil {
		return models.RateLimits{}, apperr.Wrap(apperr.Internal, err, "load rate limits")
	}
	if ok {
		return limits, nil
	}
	return l.defaults(platform), nil
}

func (l *rateLimiter) SetPlatformLimits(ctx context.Context, platform models.Platform, limits models.RateLimits) error {
	if limits.Minute < 0 || limits.Hour < 0 || limits.Day < 0 {
		return apperr.New(apperr.InvalidInput, "rate limits cannot be negative")
	}
	if err := l.store.SaveLimits(ctx, platform, limits); err != nil {
		return apperr.Wrap(apperr.Internal, err, "save rate limits")
	}
	l.logger.Info("rate limits updated", "platform", platform,
		"minute", limits.Minute, "hour", limits.Hour, "day", limits.Day)
	return nil
}

// CheckLimit reports whether every bounded window is strictly below its ceiling.
// A ceiling of zero leaves that window unbounded.
func (l *rateLimiter) CheckLimit(ctx context.Context, platform models.Platform, action string) (bool, error) {
	w, err := l.exhausted(ctx, platform, action)
	if err != nil {
		return false, err
	}
	return w == nil, nil
}

// exhausted returns the first window at or over its ceiling, or nil.
func (l *rateLimiter) exhausted(ctx context.Context, platform models.Platform, action string) (*window, error) {
	limits, err := l.GetPlatformLimits(ctx, platform)
	if err != nil {
		return nil, err
	}
	for i := range windows {
		w := &windows[i]
		ceiling := w.limit(limits)
		if ceiling <= 0 {
			continue
		}
		count, err := l.store.Get(ctx, counterKey(platform, action, w.name))
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, err, "read rate counter")
		}
		if count >= int64(ceiling) {
			return w, nil
		}
	}
	return nil, nil
}

// Increment bumps all three window counters. Counters are never decremented.
func (l *rateLimiter) Increment(ctx context.Context, platform models.Platform, action string) error {
	for _, w := range windows {
		if _, err := l.store.Incr(ctx, counterKey(platform, action, w.name), w.length); err != nil {
			return apperr.Wrap(apperr.Internal, err, "increment rate counter")
		}
	}
	return nil
}

// Unlimited is reported by GetRemaining for a window with no ceiling.
const Unlimited = -1

// GetRemaining returns the calls left in each window, never below zero. A window
// with a zero ceiling is unbounded and reports Unlimited, matching CheckLimit.
func (l *rateLimiter) GetRemaining(ctx context.Context, platform models.Platform, action string) (models.RateLimits, error) {
	limits, err := l.GetPlatformLimits(ctx, platform)
	if err != nil {
		return models.RateLimits{}, err
	}

	remaining := make([]int, len(windows))
	for i, w := range windows {
		ceiling := w.limit(limits)
		if ceiling <= 0 {
			remaining[i] = Unlimited
			continue
		}
		count, err := l.store.Get(ctx, counterKey(platform, action, w.name))
		if err != nil {
			return models.RateLimits{}, apperr.Wrap(apperr.Internal, err, "read rate counter")
		}
		remaining[i] = max(ceiling-int(count), 0)
	}
	return models.RateLimits{Minute: remaining[0], Hour: remaining[1], Day: remaining[2]}, nil
}

// ShouldWait returns zero when a call is allowed, else the time until the first
// exhausted window (checked minute, hour, day) resets.
func (l *rateLimiter) ShouldWait(ctx context.Context, platform models.Platform, action string) (time.Duration, error) {
	w, err := l.exhausted(ctx, platform, action)
	if err != nil || w == nil {
		return 0, err
	}
	ttl, err := l.store.TTL(ctx, counterKey(platform, action, w.name))
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, err, "read rate counter ttl")
	}
	// A counter that expired between the two reads yields zero.
	return max(ttl, 0), nil
}
