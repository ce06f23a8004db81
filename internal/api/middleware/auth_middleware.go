package middleware

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const apiKeyHeader = "X-API-Key"

type AuthMiddleware struct {
	keys       service.ApiKeyService
	auth       service.AuthService
	cookieName string
}

func NewAuthMiddleware(keys service.ApiKeyService, auth service.AuthService, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{keys: keys, auth: auth, cookieName: cookieName}
}

// AuthMiddleware accepts an API key header or query parameter, or a session
// token as a bearer header or cookie. The caller's key name is stored in the
// "operator" local.
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := c.Get(apiKeyHeader)
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}
		tokenString := bearer(c.Get(fiber.HeaderAuthorization))
		if tokenString == "" {
			tokenString = c.Cookies(m.cookieName)
		}

		if apiKey == "" && tokenString == "" {
			return unauthorized(c, "missing API key or token")
		}

		if apiKey != "" {
			key, err := m.keys.Verify(c.Context(), apiKey)
			if err != nil {
				return unauthorized(c, err.Error())
			}
			c.Locals("operator", key.Name)
			return c.Next()
		}

		claims, err := m.auth.ValidateToken(tokenString)
		if err != nil {
			c.Cookie(&fiber.Cookie{
				Name:   m.cookieName,
				Value:  "",
				Path:   "/",
				MaxAge: -1, // Delete cookie
			})

			slog.Info("token validation failed", "error", err)
			return unauthorized(c, "invalid or expired token")
		}

		c.Locals("operator", claims.Subject)
		return c.Next()
	}
}

func bearer(header string) string {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(transfer.ErrorResponse{
		Error: msg,
		Kind:  string(apperr.InvalidToken),
	})
}
