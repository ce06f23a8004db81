package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/ratelimit"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type PlatformHandler struct {
	limiter ratelimit.RateLimiter
}

func NewPlatformHandler(limiter ratelimit.RateLimiter) *PlatformHandler {
	return &PlatformHandler{limiter: limiter}
}

type platformInfo struct {
	Platform     models.Platform       `json:"platform"`
	Capabilities platform.Capabilities `json:"capabilities"`
	RateLimits   models.RateLimits     `json:"rate_limits"`
}

func (h *PlatformHandler) ListPlatforms(c *fiber.Ctx) error {
	out := make([]platformInfo, 0, len(models.Platforms))
	for _, p := range models.Platforms {
		caps, _ := platform.CapabilitiesOf(p)
		limits, err := h.limiter.GetPlatformLimits(c.Context(), p)
		if err != nil {
			return writeError(c, err)
		}
		out = append(out, platformInfo{Platform: p, Capabilities: caps, RateLimits: limits})
	}
	return c.JSON(out)
}

func (h *PlatformHandler) GetRateLimits(c *fiber.Ctx) error {
	p, err := parsePlatform(c)
	if err != nil {
		return writeError(c, err)
	}
	limits, err := h.limiter.GetPlatformLimits(c.Context(), p)
	if err != nil {
		return writeError(c, err)
	}
	remaining, err := h.limiter.GetRemaining(c.Context(), p, service.ActionPost)
	if err != nil {
		return writeError(c, err)
	}
	wait, err := h.limiter.ShouldWait(c.Context(), p, service.ActionPost)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"platform":     p,
		"limits":       limits,
		"remaining":    remaining,
		"wait_seconds": int(wait.Seconds()),
	})
}

func (h *PlatformHandler) SetRateLimits(c *fiber.Ctx) error {
	p, err := parsePlatform(c)
	if err != nil {
		return writeError(c, err)
	}
	var req transfer.RateLimitsRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}

	limits := models.RateLimits{Minute: req.Minute, Hour: req.Hour, Day: req.Day}
	if err := h.limiter.SetPlatformLimits(c.Context(), p, limits); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"platform": p, "limits": limits})
}
