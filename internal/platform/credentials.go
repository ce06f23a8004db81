package platform

import (
	"context"
	"maps"
	"sync"

	"github.com/maheshrc27/postflow/internal/apperr"
)

// PersistFunc stores the account's full credential bundle after a change.
type PersistFunc func(ctx context.Context, values map[string]string) error

// CredentialStore is the key/value view a client has of its account's credentials.
type CredentialStore interface {
	GetCredential(key string) string
	SetCredential(ctx context.Context, key, value string) error
}

// Credentials is an account's credential bundle. App-level defaults are read
// through but never persisted with the account.
type Credentials struct {
	mu       sync.RWMutex
	values   map[string]string
	defaults map[string]string
	persist  PersistFunc
}

var _ CredentialStore = (*Credentials)(nil)

func NewCredentials(values map[string]string, persist PersistFunc) *Credentials {
	c := &Credentials{values: make(map[string]string, len(values)), persist: persist}
	maps.Copy(c.values, values)
	return c
}

func (c *Credentials) setDefaults(defaults map[string]string) {
	if len(defaults) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaults = maps.Clone(defaults)
}

func (c *Credentials) GetCredential(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.values[key]; ok && v != "" {
		return v
	}
	return c.defaults[key]
}

func (c *Credentials) Has(key string) bool {
	return c.GetCredential(key) != ""
}

// Require returns the value of key or a MissingCredentials error naming it.
func (c *Credentials) Require(platform, key string) (string, error) {
	v := c.GetCredential(key)
	if v == "" {
		return "", apperr.Newf(apperr.MissingCredentials, "missing credential %q", key).WithPlatform(platform)
	}
	return v, nil
}

func (c *Credentials) SetCredential(ctx context.Context, key, value string) error {
	return c.Update(ctx, map[string]string{key: value})
}

// Update overwrites several keys at once and persists the bundle a single time.
func (c *Credentials) Update(ctx context.Context, changes map[string]string) error {
	c.mu.Lock()
	maps.Copy(c.values, changes)
	snapshot := maps.Clone(c.values)
	persist := c.persist
	c.mu.Unlock()

	if persist == nil {
		return nil
	}
	return persist(ctx, snapshot)
}

// Values returns a copy of the account-level values.
func (c *Credentials) Values() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.values)
}
