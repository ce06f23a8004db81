package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/maheshrc27/postflow/internal/telemetry"
)

// Enqueuer is the part of asynq.Client the waker uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Waker schedules one wake-up task per post and due time.
type Waker struct {
	client Enqueuer
	logger *slog.Logger
}

func NewWaker(client Enqueuer, logger *slog.Logger) *Waker {
	return &Waker{
		client: client,
		logger: telemetry.Logger(logger),
	}
}

func (w *Waker) WakeAt(ctx context.Context, postID int64, at time.Time) error {
	taskPayload, err := json.Marshal(SchedulePostPayload{PostID: postID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeSchedulePost, taskPayload)
	_, err = w.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(at),
		asynq.TaskID(taskID(postID, at)),
		asynq.MaxRetry(3),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return err
	}

	w.logger.Debug("wake-up task scheduled", "social_post_id", postID, "at", at)
	return nil
}

// taskID makes a reschedule to the same instant a no-op.
func taskID(postID int64, at time.Time) string {
	return fmt.Sprintf("post:%d:%d", postID, at.Unix())
}
