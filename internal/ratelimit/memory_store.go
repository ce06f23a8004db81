package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

type memoryCounter struct {
	count   int64
	expires time.Time
}

// MemoryStore keeps counters in process memory. It suits tests and single-process deployments.
type MemoryStore struct {
	mu       sync.Mutex
	now      func() time.Time
	counters map[string]*memoryCounter
	limits   map[models.Platform]models.RateLimits
}

// NewMemoryStore creates a store reading time from now, or time.Now when nil.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:      now,
		counters: make(map[string]*memoryCounter),
		limits:   make(map[models.Platform]models.RateLimits),
	}
}

// live returns the unexpired counter for key. Callers hold mu.
func (s *MemoryStore) live(key string) *memoryCounter {
	c, ok := s.counters[key]
	if !ok {
		return nil
	}
	if !s.now().Before(c.expires) {
		delete(s.counters, key)
		return nil
	}
	return c
}

func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.live(key)
	if c == nil {
		c = &memoryCounter{expires: s.now().Add(ttl)}
		s.counters[key] = c
	}
	c.count++
	return c.count, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.live(key); c != nil {
		return c.count, nil
	}
	return 0, nil
}

func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.live(key); c != nil {
		return c.expires.Sub(s.now()), nil
	}
	return 0, nil
}

func (s *MemoryStore) SaveLimits(_ context.Context, platform models.Platform, limits models.RateLimits) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits[platform] = limits
	return nil
}

func (s *MemoryStore) LoadLimits(_ context.Context, platform models.Platform) (models.RateLimits, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limits[platform]
	return l, ok, nil
}
