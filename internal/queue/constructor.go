// Package queue connects the scheduled-post queue to asynq. Scheduling a post
// enqueues a delayed wake-up task; the worker answers it with a drain pass.
package queue

import (
	"context"
	"log/slog"

	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/telemetry"
)

const TaskTypeSchedulePost = "schedule:post"

type SchedulePostPayload struct {
	PostID int64 `json:"post_id"`
}

// Drainer processes the due entries of the scheduled-post queue.
type Drainer interface {
	Drain(ctx context.Context) (*service.DrainSummary, error)
}

type Queue struct {
	drainer Drainer
	logger  *slog.Logger
}

func NewQueue(drainer Drainer, logger *slog.Logger) *Queue {
	return &Queue{
		drainer: drainer,
		logger:  telemetry.Logger(logger),
	}
}
