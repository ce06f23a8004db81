package platform

import (
	"context"
	"sort"
	"sync"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
)

// Registry is the runtime directory of configured clients, one per platform.
type Registry struct {
	mu      sync.RWMutex
	clients map[models.Platform]Client

	// live authentication results, filled lazily by GetAllActive
	active map[models.Platform]bool
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[models.Platform]Client),
		active:  make(map[models.Platform]bool),
	}
}

// Register adds or replaces the client for its platform.
func (r *Registry) Register(client Client) error {
	if client == nil {
		return apperr.New(apperr.InvalidInput, "cannot register a nil client")
	}
	name := client.Name()
	if _, ok := profiles[name]; !ok {
		return apperr.Newf(apperr.Unsupported, "unsupported platform %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	delete(r.active, name)
	return nil
}

func (r *Registry) Get(name models.Platform) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	return c, ok
}

func (r *Registry) IsAvailable(name models.Platform) bool {
	_, ok := r.Get(name)
	return ok
}

func (r *Registry) Unregister(name models.Platform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, name)
	delete(r.active, name)
}

// Platforms lists registered platforms in a stable order.
func (r *Registry) Platforms() []models.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Platform, 0, len(r.clients))
	for p := range r.clients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// GetAllActive returns the clients whose credentials authenticate. Each client is
// checked once per registry lifetime; Invalidate forces a recheck.
func (r *Registry) GetAllActive(ctx context.Context) []Client {
	var active []Client
	for _, p := range r.Platforms() {
		client, ok := r.Get(p)
		if !ok {
			continue
		}

		r.mu.RLock()
		live, checked := r.active[p]
		r.mu.RUnlock()

		if !checked {
			live = client.IsAuthenticated(ctx)
			r.mu.Lock()
			// Skip caching if the client was replaced during the check.
			if r.clients[p] == client {
				r.active[p] = live
			}
			r.mu.Unlock()
		}
		if live {
			active = append(active, client)
		}
	}
	return active
}

// Invalidate drops cached liveness for the given platforms, or all when none are given.
func (r *Registry) Invalidate(platforms ...models.Platform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(platforms) == 0 {
		r.active = make(map[models.Platform]bool)
		return
	}
	for _, p := range platforms {
		delete(r.active, p)
	}
}
