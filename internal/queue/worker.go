package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// HandleSchedulePostTask runs a drain pass. The payload only names the post
// that asked for it; the drain takes every entry that is due.
func (j *Queue) HandleSchedulePostTask(ctx context.Context, task *asynq.Task) error {
	var payload SchedulePostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", TaskTypeSchedulePost, err, asynq.SkipRetry)
	}

	summary, err := j.drainer.Drain(ctx)
	if err != nil {
		j.logger.Error("drain failed", "social_post_id", payload.PostID, "error", err)
		return err
	}

	j.logger.Info("drain finished", "social_post_id", payload.PostID,
		"claimed", summary.Claimed, "published", summary.Published,
		"retrying", summary.Retrying, "failed", summary.Failed)
	return nil
}

// Mux routes queue tasks to their handlers.
func (j *Queue) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeSchedulePost, j.HandleSchedulePostTask)
	return mux
}
