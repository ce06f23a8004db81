package models

import "time"

type QueueEntry struct {
	ID            int64      `db:"id" json:"id"`
	SocialPostID  int64      `db:"social_post_id" json:"social_post_id"`
	Priority      int        `db:"priority" json:"priority"`
	ScheduledFor  time.Time  `db:"scheduled_for" json:"scheduled_for"`
	Processing    bool       `db:"processing" json:"processing"`
	Attempts      int        `db:"attempts" json:"attempts"`
	LastAttemptAt *time.Time `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	NextRetryAt   *time.Time `db:"next_retry_at" json:"next_retry_at,omitempty"`
	ProcessedAt   *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

const (
	MinPriority     = 1
	MaxPriority     = 10
	DefaultPriority = 5
)

type QueueStats struct {
	Pending        int `db:"pending" json:"pending"`
	Overdue        int `db:"overdue" json:"overdue"`
	Processing     int `db:"processing" json:"processing"`
	Failed         int `db:"failed" json:"failed"`
	CompletedToday int `db:"completed_today" json:"completed_today"`
}
