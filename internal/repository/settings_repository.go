package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/maheshrc27/postflow/internal/models"
)

type SettingsRepository interface {
	GetAutoShare(ctx context.Context) (*models.AutoShareSettings, bool, error)
	SaveAutoShare(ctx context.Context, s *models.AutoShareSettings) error
}

type settingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) GetAutoShare(ctx context.Context) (*models.AutoShareSettings, bool, error) {
	query := `SELECT enabled, platforms, include_image, excerpt_length, updated_at FROM autoshare_settings WHERE id = 1`

	var s models.AutoShareSettings
	var platforms []string
	err := r.db.QueryRowContext(ctx, query).Scan(&s.Enabled, pq.Array(&platforms), &s.IncludeImage, &s.ExcerptLength, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		slog.Info(err.Error())
		return nil, false, err
	}
	for _, p := range platforms {
		s.Platforms = append(s.Platforms, models.Platform(p))
	}
	return &s, true, nil
}

func (r *settingsRepository) SaveAutoShare(ctx context.Context, s *models.AutoShareSettings) error {
	query := `
		INSERT INTO autoshare_settings (id, enabled, platforms, include_image, excerpt_length, updated_at)
		VALUES (1, $1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			platforms = EXCLUDED.platforms,
			include_image = EXCLUDED.include_image,
			excerpt_length = EXCLUDED.excerpt_length,
			updated_at = EXCLUDED.updated_at
	`
	platforms := make([]string, len(s.Platforms))
	for i, p := range s.Platforms {
		platforms[i] = string(p)
	}
	_, err := r.db.ExecContext(ctx, query, s.Enabled, pq.Array(platforms), s.IncludeImage, s.ExcerptLength, time.Now())
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
