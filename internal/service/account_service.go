package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/telemetry"
)

type AccountUpdate struct {
	DisplayName string
	Credentials map[string]string
	Status      string
}

type RefreshSummary struct {
	Checked   int `json:"checked"`
	Refreshed int `json:"refreshed"`
	Failed    int `json:"failed"`
}

type AccountService interface {
	// Create stores an account after its credentials pass a live check, unless skipTest is set.
	Create(ctx context.Context, a *models.Account, skipTest bool) (int64, error)
	Get(ctx context.Context, id int64) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
	Update(ctx context.Context, id int64, u AccountUpdate) (*models.Account, error)
	Delete(ctx context.Context, id int64) error
	// RefreshExpiring re-authenticates accounts whose token expires within the window.
	RefreshExpiring(ctx context.Context, within time.Duration) (*RefreshSummary, error)
}

type accountService struct {
	accounts repository.AccountRepository
	clients  ClientResolver
	logger   *slog.Logger
	now      func() time.Time
}

func NewAccountService(accounts repository.AccountRepository, clients ClientResolver, logger *slog.Logger) AccountService {
	return &accountService{
		accounts: accounts,
		clients:  clients,
		logger:   telemetry.Logger(logger),
		now:      time.Now,
	}
}

func (s *accountService) Create(ctx context.Context, a *models.Account, skipTest bool) (int64, error) {
	p, ok := models.ParsePlatform(string(a.Platform))
	if !ok {
		return 0, apperr.Newf(apperr.Unsupported, "unsupported platform %q", a.Platform)
	}
	a.Platform = p
	if len(a.Credentials) == 0 {
		return 0, apperr.New(apperr.MissingCredentials, "credentials are required").WithPlatform(string(p))
	}

	if !skipTest {
		if err := s.clients.TestCredentials(ctx, p, a.Credentials); err != nil {
			return 0, err
		}
	}
	if a.Status == "" {
		a.Status = models.AccountStatusActive
	}
	if a.DisplayName == "" {
		a.DisplayName = string(p)
	}

	id, err := s.accounts.Create(ctx, a)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, err, "save account")
	}
	a.ID = id
	s.logger.Info("account created", "account_id", id, "platform", p)
	return id, nil
}

func (s *accountService) Get(ctx context.Context, id int64) (*models.Account, error) {
	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "load account")
	}
	if a == nil {
		return nil, apperr.Newf(apperr.NotFound, "account %d not found", id)
	}
	return a, nil
}

func (s *accountService) List(ctx context.Context) ([]*models.Account, error) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "list accounts")
	}
	return accounts, nil
}

func (s *accountService) Update(ctx context.Context, id int64, u AccountUpdate) (*models.Account, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if u.DisplayName != "" {
		a.DisplayName = u.DisplayName
	}
	if len(u.Credentials) > 0 {
		if err := s.clients.TestCredentials(ctx, a.Platform, u.Credentials); err != nil {
			return nil, err
		}
		a.Credentials = u.Credentials
		a.TokenExpiresAt = nil
	}
	switch u.Status {
	case "":
	case models.AccountStatusActive, models.AccountStatusInactive:
		a.Status = u.Status
	default:
		return nil, apperr.Newf(apperr.InvalidInput, "invalid account status %q", u.Status)
	}

	if err := s.accounts.Update(ctx, a); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "update account")
	}
	s.clients.Forget(id)
	return a, nil
}

func (s *accountService) Delete(ctx context.Context, id int64) error {
	removed, err := s.accounts.Remove(ctx, id)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "delete account")
	}
	if !removed {
		return apperr.Newf(apperr.NotFound, "account %d not found", id)
	}
	s.clients.Forget(id)
	s.logger.Info("account deleted", "account_id", id)
	return nil
}

func (s *accountService) RefreshExpiring(ctx context.Context, within time.Duration) (*RefreshSummary, error) {
	accounts, err := s.accounts.ListExpiring(ctx, s.now().Add(within))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "list expiring accounts")
	}

	summary := &RefreshSummary{Checked: len(accounts)}
	for _, a := range accounts {
		err := s.refresh(ctx, a)
		status, lastError := models.AccountStatusActive, ""
		if err != nil {
			summary.Failed++
			status, lastError = models.AccountStatusError, err.Error()
			s.logger.Warn("token refresh failed", "account_id", a.ID, "platform", a.Platform, "error", err)
		} else {
			summary.Refreshed++
		}
		if err := s.accounts.SetStatus(ctx, a.ID, status, lastError); err != nil {
			s.logger.Error("failed to record account status", "account_id", a.ID, "error", err)
		}
		if status != models.AccountStatusActive {
			s.clients.Forget(a.ID)
		}
	}
	return summary, nil
}

func (s *accountService) refresh(ctx context.Context, a *models.Account) error {
	client, err := s.clients.ForAccount(ctx, a)
	if err != nil {
		return err
	}
	if r, ok := client.(platform.Refresher); ok {
		return r.RefreshToken(ctx)
	}
	return client.Authenticate(ctx)
}
