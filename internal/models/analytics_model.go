package models

import (
	"encoding/json"
	"time"
)

type AnalyticsRecord struct {
	SocialPostID   int64           `db:"social_post_id" json:"social_post_id"`
	Platform       Platform        `db:"platform" json:"platform"`
	MetricDate     time.Time       `db:"metric_date" json:"metric_date"`
	Impressions    int64           `db:"impressions" json:"impressions"`
	Reach          int64           `db:"reach" json:"reach"`
	Likes          int64           `db:"likes" json:"likes"`
	Comments       int64           `db:"comments" json:"comments"`
	Shares         int64           `db:"shares" json:"shares"`
	Saves          int64           `db:"saves" json:"saves"`
	Clicks         int64           `db:"clicks" json:"clicks"`
	EngagementRate float64         `db:"engagement_rate" json:"engagement_rate"`
	Raw            json.RawMessage `db:"raw" json:"raw,omitempty"`
	SyncedAt       time.Time       `db:"synced_at" json:"synced_at"`
}

// Engagements is the sum of the interaction counters.
func (r *AnalyticsRecord) Engagements() int64 {
	return r.Likes + r.Comments + r.Shares + r.Saves + r.Clicks
}

// PlatformTotals is one aggregated row per platform.
type PlatformTotals struct {
	Platform          Platform `db:"platform" json:"platform"`
	Posts             int64    `db:"posts" json:"posts"`
	Impressions       int64    `db:"impressions" json:"impressions"`
	Reach             int64    `db:"reach" json:"reach"`
	Likes             int64    `db:"likes" json:"likes"`
	Comments          int64    `db:"comments" json:"comments"`
	Shares            int64    `db:"shares" json:"shares"`
	Saves             int64    `db:"saves" json:"saves"`
	Clicks            int64    `db:"clicks" json:"clicks"`
	EngagementRateSum float64  `db:"engagement_rate_sum" json:"-"`
}

type PostPerformance struct {
	SocialPostID   int64     `db:"social_post_id" json:"social_post_id"`
	Platform       Platform  `db:"platform" json:"platform"`
	Content        string    `db:"content" json:"content"`
	PublishedAt    time.Time `db:"published_at" json:"published_at"`
	Impressions    int64     `db:"impressions" json:"impressions"`
	Likes          int64     `db:"likes" json:"likes"`
	Comments       int64     `db:"comments" json:"comments"`
	Shares         int64     `db:"shares" json:"shares"`
	EngagementRate float64   `db:"engagement_rate" json:"engagement_rate"`
}

type DailyTrend struct {
	MetricDate     time.Time `db:"metric_date" json:"date"`
	Platform       Platform  `db:"platform" json:"platform"`
	Impressions    int64     `db:"impressions" json:"impressions"`
	Engagements    int64     `db:"engagements" json:"engagements"`
	EngagementRate float64   `db:"engagement_rate" json:"engagement_rate"`
}

type PostingSlot struct {
	Weekday        int     `db:"weekday" json:"weekday"`
	Hour           int     `db:"hour" json:"hour"`
	Posts          int64   `db:"posts" json:"posts"`
	EngagementRate float64 `db:"engagement_rate" json:"avg_engagement_rate"`
}
