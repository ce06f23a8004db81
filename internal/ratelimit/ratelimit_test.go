package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func fixedLimits(l models.RateLimits) DefaultsFunc {
	return func(models.Platform) models.RateLimits { return l }
}

func newMemoryLimiter(t *testing.T, l models.RateLimits) (RateLimiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewRateLimiter(NewMemoryStore(clock.now), fixedLimits(l), nil), clock
}

func TestMinuteWindowResets(t *testing.T) {
	ctx := context.Background()
	rl, clock := newMemoryLimiter(t, models.RateLimits{Minute: 1, Hour: 10, Day: 100})

	ok, err := rl.CheckLimit(ctx, models.PlatformTwitter, "post")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, rl.Increment(ctx, models.PlatformTwitter, "post"))

	ok, err = rl.CheckLimit(ctx, models.PlatformTwitter, "post")
	require.NoError(t, err)
	assert.False(t, ok)

	wait, err := rl.ShouldWait(ctx, models.PlatformTwitter, "post")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, wait)

	clock.advance(61 * time.Second)

	ok, err = rl.CheckLimit(ctx, models.PlatformTwitter, "post")
	require.NoError(t, err)
	assert.True(t, ok)

	wait, err = rl.ShouldWait(ctx, models.PlatformTwitter, "post")
	require.NoError(t, err)
	assert.Zero(t, wait)
}

func TestHourWindowOutlivesMinute(t *testing.T) {
	ctx := context.Background()
	rl, clock := newMemoryLimiter(t, models.RateLimits{Minute: 5, Hour: 2, Day: 100})

	require.NoError(t, rl.Increment(ctx, models.PlatformLinkedIn, "post"))
	clock.advance(2 * time.Minute)
	require.NoError(t, rl.Increment(ctx, models.PlatformLinkedIn, "post"))

	ok, err := rl.CheckLimit(ctx, models.PlatformLinkedIn, "post")
	require.NoError(t, err)
	assert.False(t, ok)

	// The hour counter was created by the first increment and keeps its expiry.
	wait, err := rl.ShouldWait(ctx, models.PlatformLinkedIn, "post")
	require.NoError(t, err)
	assert.Equal(t, 58*time.Minute, wait)

	remaining, err := rl.GetRemaining(ctx, models.PlatformLinkedIn, "post")
	require.NoError(t, err)
	assert.Equal(t, models.RateLimits{Minute: 4, Hour: 0, Day: 98}, remaining)
}

func TestActionsAndPlatformsAreIndependent(t *testing.T) {
	ctx := context.Background()
	rl, _ := newMemoryLimiter(t, models.RateLimits{Minute: 1, Hour: 1, Day: 1})

	require.NoError(t, rl.Increment(ctx, models.PlatformFacebook, "post"))

	ok, err := rl.CheckLimit(ctx, models.PlatformFacebook, "analytics")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rl.CheckLimit(ctx, models.PlatformInstagram, "post")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestZeroCeilingIsUnbounded(t *testing.T) {
	ctx := context.Background()
	rl, _ := newMemoryLimiter(t, models.RateLimits{Minute: 0, Hour: 0, Day: 3})

	for range 2 {
		require.NoError(t, rl.Increment(ctx, models.PlatformTelegram, "post"))
	}
	ok, err := rl.CheckLimit(ctx, models.PlatformTelegram, "post")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, rl.Increment(ctx, models.PlatformTelegram, "post"))
	ok, err = rl.CheckLimit(ctx, models.PlatformTelegram, "post")
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := rl.GetRemaining(ctx, models.PlatformTelegram, "post")
	require.NoError(t, err)
	assert.Equal(t, models.RateLimits{Minute: Unlimited, Hour: Unlimited, Day: 0}, remaining)
}

func TestRemainingAgreesWithCheckLimitWhenUnbounded(t *testing.T) {
	ctx := context.Background()
	rl, _ := newMemoryLimiter(t, models.RateLimits{})

	for range 5 {
		require.NoError(t, rl.Increment(ctx, models.PlatformTiktok, "post"))
	}
	ok, err := rl.CheckLimit(ctx, models.PlatformTiktok, "post")
	require.NoError(t, err)
	assert.True(t, ok)

	remaining, err := rl.GetRemaining(ctx, models.PlatformTiktok, "post")
	require.NoError(t, err)
	assert.Equal(t, models.RateLimits{Minute: Unlimited, Hour: Unlimited, Day: Unlimited}, remaining)
}

func TestRemainingNeverNegative(t *testing.T) {
	ctx := context.Background()
	rl, _ := newMemoryLimiter(t, models.RateLimits{Minute: 1, Hour: 10, Day: 10})

	for range 3 {
		require.NoError(t, rl.Increment(ctx, models.PlatformYoutube, "post"))
	}
	remaining, err := rl.GetRemaining(ctx, models.PlatformYoutube, "post")
	require.NoError(t, err)
	assert.Equal(t, models.RateLimits{Minute: 0, Hour: 7, Day: 7}, remaining)
}

func TestPlatformLimitOverride(t *testing.T) {
	ctx := context.Background()
	rl, _ := newMemoryLimiter(t, models.RateLimits{Minute: 10, Hour: 100, Day: 1000})

	limits, err := rl.GetPlatformLimits(ctx, models.PlatformTiktok)
	require.NoError(t, err)
	assert.Equal(t, models.RateLimits{Minute: 10, Hour: 100, Day: 1000}, limits)

	require.NoError(t, rl.SetPlatformLimits(ctx, models.PlatformTiktok, models.RateLimits{Minute: 1, Hour: 2, Day: 3}))

	limits, err = rl.GetPlatformLimits(ctx, models.PlatformTiktok)
	require.NoError(t, err)
	assert.Equal(t, models.RateLimits{Minute: 1, Hour: 2, Day: 3}, limits)

	require.NoError(t, rl.Increment(ctx, models.PlatformTiktok, "post"))
	ok, err := rl.CheckLimit(ctx, models.PlatformTiktok, "post")
	require.NoError(t, err)
	assert.False(t, ok)

	err = rl.SetPlatformLimits(ctx, models.PlatformTiktok, models.RateLimits{Minute: -1})
	assert.True(t, apperr.IsKind(err, apperr.InvalidInput))
}

func newRedisLimiter(t *testing.T, l models.RateLimits) (RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRateLimiter(NewRedisStore(rdb), fixedLimits(l), nil), mr
}

func TestRedisStoreWindows(t *testing.T) {
	ctx := context.Background()
	rl, mr := newRedisLimiter(t, models.RateLimits{Minute: 2, Hour: 10, Day: 100})

	require.NoError(t, rl.Increment(ctx, models.PlatformInstagram, "post"))
	require.NoError(t, rl.Increment(ctx, models.PlatformInstagram, "post"))

	ok, err := rl.CheckLimit(ctx, models.PlatformInstagram, "post")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, "2", mustGet(t, mr, "ratelimit:instagram:post:minute"))
	assert.Equal(t, time.Minute, mr.TTL("ratelimit:instagram:post:minute"))
	assert.Equal(t, time.Hour, mr.TTL("ratelimit:instagram:post:hour"))

	wait, err := rl.ShouldWait(ctx, models.PlatformInstagram, "post")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, wait)

	mr.FastForward(61 * time.Second)

	ok, err = rl.CheckLimit(ctx, models.PlatformInstagram, "post")
	require.NoError(t, err)
	assert.True(t, ok)

	remaining, err := rl.GetRemaining(ctx, models.PlatformInstagram, "post")
	require.NoError(t, err)
	assert.Equal(t, models.RateLimits{Minute: 2, Hour: 8, Day: 98}, remaining)
}

func TestRedisStoreKeepsFirstExpiry(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	store := NewRedisStore(rdb)

	n, err := store.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	mr.FastForward(40 * time.Second)

	n, err = store.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ttl, err := store.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, ttl)

	ttl, err = store.TTL(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, ttl)

	got, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestRedisStoreLimits(t *testing.T) {
	ctx := context.Background()
	rl, mr := newRedisLimiter(t, models.RateLimits{Minute: 5, Hour: 50, Day: 500})

	require.NoError(t, rl.SetPlatformLimits(ctx, models.PlatformFacebook, models.RateLimits{Minute: 1, Hour: 20, Day: 300}))
	assert.Equal(t, "20", mr.HGet("ratelimit:limits:facebook", "hour"))

	limits, err := rl.GetPlatformLimits(ctx, models.PlatformFacebook)
	require.NoError(t, err)
	assert.Equal(t, models.RateLimits{Minute: 1, Hour: 20, Day: 300}, limits)

	limits, err = rl.GetPlatformLimits(ctx, models.PlatformTwitter)
	require.NoError(t, err)
	assert.Equal(t, models.RateLimits{Minute: 5, Hour: 50, Day: 500}, limits)
}

func TestRedisUnavailable(t *testing.T) {
	ctx := context.Background()
	rl, mr := newRedisLimiter(t, models.RateLimits{Minute: 5})
	mr.Close()

	_, err := rl.CheckLimit(ctx, models.PlatformTwitter, "post")
	assert.True(t, apperr.IsKind(err, apperr.Internal))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
