package models

import "time"

// PostingHistory is one publish attempt of a social post, immediate or from the queue.
type PostingHistory struct {
	ID           int64     `db:"id" json:"id"`
	SocialPostID int64     `db:"social_post_id" json:"social_post_id"`
	Platform     Platform  `db:"platform" json:"platform"`
	BatchID      string    `db:"batch_id" json:"batch_id"`
	Attempt      int       `db:"attempt" json:"attempt"`
	Success      bool      `db:"success" json:"success"`
	ErrorKind    string    `db:"error_kind" json:"error_kind,omitempty"`
	ErrorMessage string    `db:"error_message" json:"error_message,omitempty"`
	DurationMs   int64     `db:"duration_ms" json:"duration_ms"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
