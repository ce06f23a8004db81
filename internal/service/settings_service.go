package service

import (
	"context"
	"log/slog"

	cfg "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
)

type SettingsService interface {
	// GetAutoShare returns the stored policy, or the configured defaults when none was saved.
	GetAutoShare(ctx context.Context) (*models.AutoShareSettings, error)
	UpdateAutoShare(ctx context.Context, s *models.AutoShareSettings) error
}

type settingsService struct {
	sr       repository.SettingsRepository
	defaults cfg.AutoShare
}

func NewSettingsService(sr repository.SettingsRepository, defaults cfg.AutoShare) SettingsService {
	return &settingsService{
		sr:       sr,
		defaults: defaults,
	}
}

func (s *settingsService) GetAutoShare(ctx context.Context) (*models.AutoShareSettings, error) {
	settings, isExist, err := s.sr.GetAutoShare(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "load auto-share settings")
	}
	if isExist {
		return settings, nil
	}

	out := &models.AutoShareSettings{
		Enabled:       s.defaults.Enabled,
		IncludeImage:  s.defaults.IncludeImage,
		ExcerptLength: s.defaults.ExcerptLength,
	}
	for _, name := range s.defaults.Platforms {
		p, ok := models.ParsePlatform(name)
		if !ok {
			slog.Info("ignoring unknown auto-share platform", "platform", name)
			continue
		}
		out.Platforms = append(out.Platforms, p)
	}
	return out, nil
}

func (s *settingsService) UpdateAutoShare(ctx context.Context, settings *models.AutoShareSettings) error {
	if settings.ExcerptLength < 0 {
		return apperr.New(apperr.InvalidInput, "excerpt length cannot be negative")
	}
	for _, p := range settings.Platforms {
		if _, ok := platformKnown(p); !ok {
			return apperr.Newf(apperr.InvalidInput, "unknown platform %q", p)
		}
	}
	if err := s.sr.SaveAutoShare(ctx, settings); err != nil {
		return apperr.Wrap(apperr.Internal, err, "save auto-share settings")
	}
	return nil
}
