package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/service"
)

type AnalyticsHandler struct {
	a service.AnalyticsService
}

func NewAnalyticsHandler(a service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{a: a}
}

func (h *AnalyticsHandler) Report(c *fiber.Ctx) error {
	report, err := h.a.GenerateReport(c.Context(), c.QueryInt("days", 30))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(report)
}

func (h *AnalyticsHandler) Summary(c *fiber.Ctx) error {
	summary, err := h.a.GetPlatformSummary(c.Context(), c.QueryInt("days", 30))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(summary)
}

func (h *AnalyticsHandler) TopPosts(c *fiber.Ctx) error {
	posts, err := h.a.GetTopPosts(c.Context(), c.QueryInt("days", 30), c.QueryInt("limit", 10))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(posts)
}

func (h *AnalyticsHandler) Trends(c *fiber.Ctx) error {
	trends, err := h.a.GetEngagementTrends(c.Context(), c.QueryInt("days", 30))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(trends)
}

func (h *AnalyticsHandler) BestTimes(c *fiber.Ctx) error {
	best, err := h.a.GetBestPostingTimes(c.Context(), c.QueryInt("days", 30), c.QueryInt("limit", 5))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(best)
}

func (h *AnalyticsHandler) Comparison(c *fiber.Ctx) error {
	cmp, err := h.a.GetPlatformComparison(c.Context(), c.QueryInt("days", 30))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(cmp)
}

// SyncPost refreshes one post's metrics. Limited platforms still return the
// stored record, flagged as limited.
func (h *AnalyticsHandler) SyncPost(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return writeError(c, err)
	}
	rec, err := h.a.SyncPostAnalytics(c.Context(), id)
	if apperr.IsKind(err, apperr.AnalyticsUnavailable) && rec != nil {
		return c.JSON(fiber.Map{"record": rec, "limited": true, "note": err.Error()})
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"record": rec, "limited": false})
}

func (h *AnalyticsHandler) SyncAll(c *fiber.Ctx) error {
	summary, err := h.a.SyncAllAnalytics(c.Context(), c.QueryInt("days", 7))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(summary)
}
