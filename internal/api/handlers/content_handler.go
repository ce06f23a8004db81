package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/postflow/internal/generator"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
)

// ContentHandler serves the blog webhook and content generation.
type ContentHandler struct {
	m service.ManagerService
}

func NewContentHandler(m service.ManagerService) *ContentHandler {
	return &ContentHandler{m: m}
}

func (h *ContentHandler) ContentPublished(c *fiber.Ctx) error {
	var req transfer.ContentPublishedRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}

	res, err := h.m.HandleContentPublished(c.Context(), service.ContentEvent{
		Title:     req.Title,
		Excerpt:   req.Excerpt,
		URL:       req.URL,
		LeadImage: req.LeadImage,
	})
	if err != nil {
		return writeError(c, err)
	}
	if res == nil {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"shared": false})
	}
	results := publishResults(res)
	return c.Status(multiStatus(results)).JSON(fiber.Map{"shared": true, "results": results})
}

func (h *ContentHandler) Generate(c *fiber.Ctx) error {
	var req transfer.GenerateRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	opts := service.GenerateOptions{Tone: req.Tone, MaxHashtags: req.MaxHashtags}
	platforms := toPlatforms(req.Platforms)

	if req.Publish {
		results := publishResults(h.m.GenerateAndPublish(c.Context(), req.Topic, platforms, opts,
			service.PostOptions{Media: req.Media}))
		return c.Status(multiStatus(results)).JSON(fiber.Map{"results": results})
	}

	out := make(map[models.Platform]*generator.Generated, len(platforms))
	for _, p := range platforms {
		g, err := h.m.GenerateContent(c.Context(), req.Topic, p, opts)
		if err != nil {
			return writeError(c, err)
		}
		out[p] = g
	}
	return c.JSON(fiber.Map{"generated": out})
}
