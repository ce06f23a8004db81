package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type PostHandler struct {
	m       service.ManagerService
	s       service.SchedulerService
	history repository.PostingHistoryRepository
}

func NewPostHandler(m service.ManagerService, s service.SchedulerService, history repository.PostingHistoryRepository) *PostHandler {
	return &PostHandler{m: m, s: s, history: history}
}

func (h *PostHandler) Publish(c *fiber.Ctx) error {
	var req transfer.PublishRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	opts, err := postOptions(req)
	if err != nil {
		return writeError(c, err)
	}

	results := publishResults(h.m.PublishNow(c.Context(), req.Content, toPlatforms(req.Platforms), opts))
	return c.Status(multiStatus(results)).JSON(fiber.Map{"results": results})
}

func scheduleOptions(req transfer.ScheduleRequest) (service.PostOptions, error) {
	opts, err := postOptions(req.PublishRequest)
	if err != nil {
		return opts, err
	}
	opts.Priority = req.Priority
	opts.MaxRetries = req.MaxRetries
	return opts, nil
}

func (h *PostHandler) Schedule(c *fiber.Ctx) error {
	var req transfer.ScheduleRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	opts, err := scheduleOptions(req)
	if err != nil {
		return writeError(c, err)
	}

	res, err := h.m.SchedulePost(c.Context(), req.Content, req.ScheduledTime, toPlatforms(req.Platforms), opts)
	if err != nil {
		return writeError(c, err)
	}
	results := scheduleResults(res)
	return c.Status(multiStatus(results)).JSON(fiber.Map{"results": results})
}

func (h *PostHandler) BulkSchedule(c *fiber.Ctx) error {
	var req transfer.BulkScheduleRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}

	items := make([]service.ScheduleItem, 0, len(req.Items))
	for _, it := range req.Items {
		opts, err := scheduleOptions(it)
		if err != nil {
			return writeError(c, err)
		}
		items = append(items, service.ScheduleItem{
			Content:       it.Content,
			ScheduledTime: it.ScheduledTime,
			Platforms:     toPlatforms(it.Platforms),
			Options:       opts,
		})
	}

	out := h.m.BulkSchedule(c.Context(), items)
	results := make([]map[models.Platform]transfer.PlatformResult, len(out))
	for i, r := range out {
		results[i] = scheduleResults(r)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"items": results})
}

func (h *PostHandler) Cancel(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return writeError(c, err)
	}
	if _, err := h.s.CancelScheduledPost(c.Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"cancelled": true})
}

func (h *PostHandler) Reschedule(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return writeError(c, err)
	}
	var req transfer.RescheduleRequest
	if err := parseBody(c, &req); err != nil {
		return writeError(c, err)
	}
	at, err := service.ParseScheduleTime(req.ScheduledTime)
	if err != nil {
		return writeError(c, err)
	}

	if _, err := h.s.ReschedulePost(c.Context(), id, at); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"rescheduled": true, "scheduled_time": at})
}

func (h *PostHandler) History(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return writeError(c, err)
	}
	rows, err := h.history.ListByPostID(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	if rows == nil {
		rows = []*models.PostingHistory{}
	}
	return c.JSON(rows)
}

func (h *PostHandler) QueueStats(c *fiber.Ctx) error {
	stats, err := h.s.GetQueueStats(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(stats)
}

// ProcessQueue runs one drain pass on demand.
func (h *PostHandler) ProcessQueue(c *fiber.Ctx) error {
	summary, err := h.m.ProcessScheduledPosts(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(summary)
}
