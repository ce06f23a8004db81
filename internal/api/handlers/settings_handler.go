package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type SettingsHandler struct {
	s service.SettingsService
}

func NewSettingsHandler(service service.SettingsService) *SettingsHandler {
	return &SettingsHandler{s: service}
}

func (h *SettingsHandler) GetAutoShare(c *fiber.Ctx) error {
	settings, err := h.s.GetAutoShare(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(settings)
}

func (h *SettingsHandler) UpdateAutoShare(c *fiber.Ctx) error {
	var req transfer.AutoShareRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}

	settings := &models.AutoShareSettings{
		Enabled:       req.Enabled,
		Platforms:     toPlatforms(req.Platforms),
		IncludeImage:  req.IncludeImage,
		ExcerptLength: req.ExcerptLength,
	}
	if err := h.s.UpdateAutoShare(c.Context(), settings); err != nil {
		return writeError(c, err)
	}
	return c.JSON(settings)
}
