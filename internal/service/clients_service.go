package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/telemetry"
)

// ClientFactory builds a platform client. platform.NewClient in production.
type ClientFactory func(p models.Platform, creds *platform.Credentials, deps platform.Deps) (platform.Client, error)

// ClientResolver hands out one long-lived client per account so authentication
// results are cached across calls, and keeps a registry of the default clients.
type ClientResolver interface {
	ForAccount(ctx context.Context, account *models.Account) (platform.Client, error)
	// Registry syncs the registry with the most recent active account of each platform.
	Registry(ctx context.Context) (*platform.Registry, error)
	TestCredentials(ctx context.Context, p models.Platform, values map[string]string) error
	Forget(accountID int64)
}

type clientResolver struct {
	accounts repository.AccountRepository
	factory  ClientFactory
	deps     platform.Deps
	logger   *slog.Logger

	mu       sync.Mutex
	clients  map[int64]platform.Client
	registry *platform.Registry
	bound    map[models.Platform]int64
}

func NewClientResolver(accounts repository.AccountRepository, factory ClientFactory, deps platform.Deps, logger *slog.Logger) ClientResolver {
	if factory == nil {
		factory = platform.NewClient
	}
	return &clientResolver{
		accounts: accounts,
		factory:  factory,
		deps:     deps,
		logger:   telemetry.Logger(logger),
		clients:  make(map[int64]platform.Client),
		registry: platform.NewRegistry(),
		bound:    make(map[models.Platform]int64),
	}
}

func (r *clientResolver) ForAccount(ctx context.Context, account *models.Account) (platform.Client, error) {
	if account == nil {
		return nil, apperr.New(apperr.AccountNotConfigured, "no account configured")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[account.ID]; ok {
		return c, nil
	}

	creds := platform.NewCredentials(account.Credentials, r.persist(account.ID))
	client, err := r.factory(account.Platform, creds, r.deps)
	if err != nil {
		return nil, err
	}
	r.clients[account.ID] = client
	return client, nil
}

// persist writes refreshed credentials back to the account row.
func (r *clientResolver) persist(accountID int64) platform.PersistFunc {
	return func(ctx context.Context, values map[string]string) error {
		var expiresAt *time.Time
		if v := values["expires_at"]; v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				expiresAt = &t
			}
		}
		if err := r.accounts.UpdateCredentials(ctx, accountID, values, expiresAt); err != nil {
			r.logger.Error("failed to persist refreshed credentials", "account_id", accountID, "error", err)
			return apperr.Wrap(apperr.Internal, err, "persist credentials")
		}
		return nil
	}
}

func (r *clientResolver) Registry(ctx context.Context) (*platform.Registry, error) {
	accounts, err := r.accounts.ListActive(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "list active accounts")
	}

	latest := make(map[models.Platform]*models.Account)
	for _, a := range accounts {
		if cur, ok := latest[a.Platform]; !ok || a.UpdatedAt.After(cur.UpdatedAt) {
			latest[a.Platform] = a
		}
	}

	for p, a := range latest {
		client, err := r.ForAccount(ctx, a)
		if err != nil {
			r.logger.Warn("skipping account with unusable client", "platform", p, "account_id", a.ID, "error", err)
			continue
		}
		r.mu.Lock()
		if r.bound[p] != a.ID || !r.registry.IsAvailable(p) {
			if err := r.registry.Register(client); err != nil {
				r.mu.Unlock()
				return nil, err
			}
			r.bound[p] = a.ID
		}
		r.mu.Unlock()
	}

	r.mu.Lock()
	for _, p := range r.registry.Platforms() {
		if _, ok := latest[p]; !ok {
			r.registry.Unregister(p)
			delete(r.bound, p)
		}
	}
	r.mu.Unlock()

	return r.registry, nil
}

func (r *clientResolver) TestCredentials(ctx context.Context, p models.Platform, values map[string]string) error {
	return platform.TestCredentials(ctx, p, values, r.deps)
}

// Forget drops the cached client of an account that was changed or deleted.
func (r *clientResolver) Forget(accountID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, accountID)
	for p, id := range r.bound {
		if id == accountID {
			r.registry.Unregister(p)
			delete(r.bound, p)
		}
	}
}
