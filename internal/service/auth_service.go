package service

import (
	"context"
	"time"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/maheshrc27/postflow/pkg/utils"
)

// AuthService exchanges an API key for a short-lived operator token.
type AuthService interface {
	IssueToken(ctx context.Context, apiKey string) (string, error)
	ValidateToken(token string) (*transfer.OperatorClaims, error)
}

type authService struct {
	keys      ApiKeyService
	secretKey string
	ttl       time.Duration
}

func NewAuthService(keys ApiKeyService, secretKey string, ttl time.Duration) AuthService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &authService{
		keys:      keys,
		secretKey: secretKey,
		ttl:       ttl,
	}
}

func (s *authService) IssueToken(ctx context.Context, apiKey string) (string, error) {
	if s.secretKey == "" {
		return "", apperr.New(apperr.MissingCredentials, "token signing key is not configured")
	}
	key, err := s.keys.Verify(ctx, apiKey)
	if err != nil {
		return "", err
	}
	token, err := utils.GenerateToken(s.secretKey, key.Name, s.ttl)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, err, "sign token")
	}
	return token, nil
}

func (s *authService) ValidateToken(token string) (*transfer.OperatorClaims, error) {
	claims, err := utils.ValidateToken(s.secretKey, token)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidToken, err, "invalid or expired token")
	}
	return claims, nil
}
