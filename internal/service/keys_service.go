package service

import (
	"context"
	"crypto/subtle"
	"log/slog"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/pkg/utils"
)

const maxApiKeys = 20

// AdminKeyName is the subject given to callers using the bootstrap admin key.
const AdminKeyName = "admin"

type ApiKeyService interface {
	// Create returns the plaintext key. It is not retrievable afterwards.
	Create(ctx context.Context, name string) (string, *models.ApiKey, error)
	List(ctx context.Context) ([]*models.ApiKey, error)
	Verify(ctx context.Context, key string) (*models.ApiKey, error)
	Remove(ctx context.Context, keyID int64) error
}

type apiKeyService struct {
	k        repository.ApiKeyRepository
	adminKey string
}

func NewApiKeyService(k repository.ApiKeyRepository, adminKey string) ApiKeyService {
	return &apiKeyService{
		k:        k,
		adminKey: adminKey,
	}
}

func (s *apiKeyService) Create(ctx context.Context, name string) (string, *models.ApiKey, error) {
	if name == "" {
		return "", nil, apperr.New(apperr.InvalidInput, "key name is required")
	}

	keys, err := s.k.List(ctx)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.Internal, err, "list API keys")
	}
	if len(keys) >= maxApiKeys {
		return "", nil, apperr.Newf(apperr.InvalidState, "only %d API keys can be created", maxApiKeys)
	}

	key, err := utils.GenerateAPIKey(24)
	if err != nil {
		slog.Info(err.Error())
		return "", nil, apperr.Wrap(apperr.Internal, err, "generate API key")
	}

	apiKey := &models.ApiKey{
		Name:    name,
		KeyHash: utils.HashAPIKey(key),
	}
	id, err := s.k.Create(ctx, apiKey)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.Internal, err, "save API key")
	}
	apiKey.ID = id
	return key, apiKey, nil
}

func (s *apiKeyService) List(ctx context.Context) ([]*models.ApiKey, error) {
	apiKeys, err := s.k.List(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "list API keys")
	}
	return apiKeys, nil
}

func (s *apiKeyService) Verify(ctx context.Context, key string) (*models.ApiKey, error) {
	if key == "" {
		return nil, apperr.New(apperr.InvalidToken, "missing API key")
	}
	if s.adminKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(s.adminKey)) == 1 {
		return &models.ApiKey{Name: AdminKeyName}, nil
	}

	apiKey, isExist, err := s.k.GetByHash(ctx, utils.HashAPIKey(key))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "look up API key")
	}
	if !isExist {
		return nil, apperr.New(apperr.InvalidToken, "unknown API key")
	}

	if err := s.k.Touch(ctx, apiKey.ID); err != nil {
		slog.Info("failed to record API key use", "key_id", apiKey.ID, "error", err)
	}
	return apiKey, nil
}

func (s *apiKeyService) Remove(ctx context.Context, keyID int64) error {
	if keyID <= 0 {
		return apperr.New(apperr.InvalidInput, "key id is not valid")
	}

	removed, err := s.k.Remove(ctx, keyID)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "remove API key")
	}
	if !removed {
		return apperr.Newf(apperr.NotFound, "API key %d not found", keyID)
	}
	return nil
}
