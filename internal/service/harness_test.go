package service

import (
	"testing"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/ratelimit"
)

// harness wires the real publisher, scheduler and manager over in-memory stores.
type harness struct {
	clock     *fakeClock
	accounts  *memAccounts
	posts     *memPosts
	queue     *memQueue
	history   *memHistory
	resolver  *fakeResolver
	limiter   ratelimit.RateLimiter
	media     *fakeMedia
	gen       *fakeGenerator
	settings  *fakeSettings
	waker     *recordingWaker
	scheduler *schedulerService
	manager   *managerService
}

func newHarness(t *testing.T, platforms ...models.Platform) *harness {
	t.Helper()
	h := &harness{
		clock:    newClock(),
		accounts: newMemAccounts(),
		posts:    newMemPosts(),
		history:  &memHistory{},
		resolver: newFakeResolver(platforms...),
		media:    &fakeMedia{},
		gen:      &fakeGenerator{},
		settings: &fakeSettings{settings: &models.AutoShareSettings{}},
		waker:    &recordingWaker{},
	}
	h.queue = newMemQueue(h.posts)
	h.limiter = ratelimit.NewRateLimiter(ratelimit.NewMemoryStore(h.clock.Now), platform.DefaultRateLimits, nil)

	pub := NewPublisher(h.resolver, h.limiter, nil)
	h.scheduler = NewSchedulerService(noTx{}, h.posts, h.queue, h.accounts, h.history, pub, h.waker,
		SchedulerConfig{BatchSize: 10, MaxRetries: 3}, nil).(*schedulerService)
	h.scheduler.now = h.clock.Now

	h.manager = NewManagerService(h.accounts, h.posts, h.history, pub, h.scheduler, h.resolver,
		h.media, h.gen, h.settings, nil).(*managerService)
	h.manager.now = h.clock.Now
	return h
}

func (h *harness) client(p models.Platform) *fakeClient {
	return h.resolver.clients[p]
}
