package models

import (
	"encoding/json"
	"time"
)

type SocialPost struct {
	ID             int64           `db:"id" json:"id"`
	AccountID      int64           `db:"account_id" json:"account_id"`
	Platform       Platform        `db:"platform" json:"platform"`
	Content        string          `db:"content" json:"content"`
	Media          []string        `db:"media" json:"media"`
	Hashtags       []string        `db:"hashtags" json:"hashtags"`
	Mentions       []string        `db:"mentions" json:"mentions"`
	Tone           string          `db:"tone" json:"tone,omitempty"`
	Category       string          `db:"category" json:"category,omitempty"`
	PlatformPostID string          `db:"platform_post_id" json:"platform_post_id,omitempty"`
	Status         string          `db:"status" json:"status"` // draft, scheduled, published, failed
	ScheduledAt    *time.Time      `db:"scheduled_at" json:"scheduled_at,omitempty"`
	PublishedAt    *time.Time      `db:"published_at" json:"published_at,omitempty"`
	ErrorMessage   string          `db:"error_message" json:"error_message,omitempty"`
	RetryCount     int             `db:"retry_count" json:"retry_count"`
	MaxRetries     int             `db:"max_retries" json:"max_retries"`
	Analytics      json.RawMessage `db:"analytics" json:"analytics,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

const (
	PostStatusDraft     = "draft"
	PostStatusScheduled = "scheduled"
	PostStatusPublished = "published"
	PostStatusFailed    = "failed"
)
