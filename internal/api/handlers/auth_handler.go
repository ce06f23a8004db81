package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/postflow/internal/service"
)

// APIKeyHeader carries an API key on requests.
const APIKeyHeader = "X-API-Key"

type AuthHandler struct {
	s          service.AuthService
	cookieName string
	ttl        time.Duration
}

func NewAuthHandler(service service.AuthService, cookieName string, ttl time.Duration) *AuthHandler {
	return &AuthHandler{s: service, cookieName: cookieName, ttl: ttl}
}

// Token exchanges an API key for a signed session token, returned in the body
// and set as an HTTP-only cookie.
func (h *AuthHandler) Token(c *fiber.Ctx) error {
	token, err := h.s.IssueToken(c.Context(), c.Get(APIKeyHeader))
	if err != nil {
		return writeError(c, err)
	}

	expires := time.Now().Add(h.ttl)
	c.Cookie(&fiber.Cookie{
		Name:     h.cookieName,
		Value:    token,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
		Expires:  expires,
	})
	return c.JSON(fiber.Map{"token": token, "expires_at": expires})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:   h.cookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	return c.SendStatus(fiber.StatusNoContent)
}
