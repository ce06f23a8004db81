package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, a *models.Account) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	GetActiveByPlatform(ctx context.Context, platform models.Platform) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
	ListActive(ctx context.Context) ([]*models.Account, error)
	ListExpiring(ctx context.Context, before time.Time) ([]*models.Account, error)
	Update(ctx context.Context, a *models.Account) error
	UpdateCredentials(ctx context.Context, id int64, values map[string]string, expiresAt *time.Time) error
	SetStatus(ctx context.Context, id int64, status, lastError string) error
	Remove(ctx context.Context, id int64) (bool, error)
}

type accountRepository struct {
	db    *sql.DB
	codec CredentialCodec
}

func NewAccountRepository(db *sql.DB, codec CredentialCodec) AccountRepository {
	if codec == nil {
		codec = PlainCodec{}
	}
	return &accountRepository{db: db, codec: codec}
}

const accountColumns = `id, platform, display_name, platform_account_id, credentials, status, last_error, last_sync_at, token_expires_at, created_at, updated_at`

func (r *accountRepository) scan(row scanner) (*models.Account, error) {
	var a models.Account
	var sealed []byte
	err := row.Scan(&a.ID, &a.Platform, &a.DisplayName, &a.PlatformAccountID, &sealed, &a.Status,
		&a.LastError, &a.LastSyncAt, &a.TokenExpiresAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Credentials, err = r.codec.Decode(sealed)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *accountRepository) Create(ctx context.Context, a *models.Account) (int64, error) {
	sealed, err := r.codec.Encode(a.Credentials)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	query := `
		INSERT INTO accounts (platform, display_name, platform_account_id, credentials, status, token_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	var id int64
	err = r.db.QueryRowContext(ctx, query, a.Platform, a.DisplayName, a.PlatformAccountID, sealed, a.Status, a.TokenExpiresAt).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	a, err := r.scan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return a, nil
}

// GetActiveByPlatform returns the most recently updated active account of the platform.
func (r *accountRepository) GetActiveByPlatform(ctx context.Context, platform models.Platform) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		WHERE platform = $1 AND status = $2
		ORDER BY updated_at DESC, id DESC
		LIMIT 1`
	a, err := r.scan(r.db.QueryRowContext(ctx, query, platform, models.AccountStatusActive))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return a, nil
}

func (r *accountRepository) List(ctx context.Context) ([]*models.Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY platform, id`)
}

func (r *accountRepository) ListActive(ctx context.Context) ([]*models.Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts WHERE status = $1 ORDER BY platform, updated_at DESC`,
		models.AccountStatusActive)
}

// ListExpiring returns active accounts whose token expires before the given time.
func (r *accountRepository) ListExpiring(ctx context.Context, before time.Time) ([]*models.Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM accounts
		WHERE status = $1 AND token_expires_at IS NOT NULL AND token_expires_at <= $2
		ORDER BY token_expires_at`,
		models.AccountStatusActive, before)
}

func (r *accountRepository) list(ctx context.Context, query string, args ...any) ([]*models.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *accountRepository) Update(ctx context.Context, a *models.Account) error {
	sealed, err := r.codec.Encode(a.Credentials)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	query := `
		UPDATE accounts
		SET display_name = $1,
			platform_account_id = $2,
			credentials = $3,
			status = $4,
			token_expires_at = $5,
			updated_at = $6
		WHERE id = $7
	`
	_, err = r.db.ExecContext(ctx, query, a.DisplayName, a.PlatformAccountID, sealed, a.Status, a.TokenExpiresAt, time.Now(), a.ID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// UpdateCredentials overwrites the stored bundle in place, as after a token refresh.
func (r *accountRepository) UpdateCredentials(ctx context.Context, id int64, values map[string]string, expiresAt *time.Time) error {
	sealed, err := r.codec.Encode(values)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	query := `
		UPDATE accounts
		SET credentials = $1,
			token_expires_at = COALESCE($2, token_expires_at),
			updated_at = $3
		WHERE id = $4
	`
	_, err = r.db.ExecContext(ctx, query, sealed, expiresAt, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *accountRepository) SetStatus(ctx context.Context, id int64, status, lastError string) error {
	query := `
		UPDATE accounts
		SET status = $1,
			last_error = $2,
			last_sync_at = $3,
			updated_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, status, lastError, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// Remove deletes the account. Its social posts go with it through the foreign key cascade.
func (r *accountRepository) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = $1", id)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
