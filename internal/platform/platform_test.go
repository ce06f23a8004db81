package platform

import (
	"context"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

type apiCall struct {
	platform string
	endpoint string
	success  bool
}

type recordingSink struct {
	mu    sync.Mutex
	calls []apiCall
}

func (s *recordingSink) TrackAPICall(_ context.Context, platform, endpoint string, _ time.Duration, success bool, _ error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, apiCall{platform: platform, endpoint: endpoint, success: success})
}

func (s *recordingSink) endpoints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.endpoint)
	}
	return out
}

// fastPoller never sleeps and counts how often it would have.
type fastPoller struct {
	mu    sync.Mutex
	slept int
}

func (f *fastPoller) poller(attempts int) Poller {
	return Poller{
		Attempts: attempts,
		Interval: 2 * time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.slept++
			return nil
		},
	}
}

func (f *fastPoller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slept
}

func testDeps(baseURL string, sink *recordingSink, poller Poller) Deps {
	deps := Deps{BaseURL: baseURL, Poller: poller}
	if sink != nil {
		deps.Sink = sink
	}
	return deps
}

func mustClient(p models.Platform, values map[string]string, deps Deps) Client {
	c, err := NewClient(p, NewCredentials(values, nil), deps)
	if err != nil {
		panic(err)
	}
	return c
}
