package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/maheshrc27/postflow/internal/models"
)

// AnalyticsRepository stores daily metric snapshots. Snapshots are cumulative, so the
// reporting queries aggregate the latest snapshot of each post inside the window.
type AnalyticsRepository interface {
	Upsert(ctx context.Context, rec *models.AnalyticsRecord) error
	ListForPost(ctx context.Context, postID int64) ([]models.AnalyticsRecord, error)
	PlatformTotals(ctx context.Context, since time.Time) ([]models.PlatformTotals, error)
	TopPosts(ctx context.Context, since time.Time, limit int) ([]models.PostPerformance, error)
	DailyTrends(ctx context.Context, since time.Time) ([]models.DailyTrend, error)
	PostingSlots(ctx context.Context, since time.Time) ([]models.PostingSlot, error)
	Cleanup(ctx context.Context, before time.Time) (int64, error)
}

type analyticsRepository struct {
	db *sqlx.DB
}

func NewAnalyticsRepository(db *sqlx.DB) AnalyticsRepository {
	return &analyticsRepository{db: db}
}

// Upsert writes the snapshot of (post, metric_date), replacing any earlier one for that day.
func (r *analyticsRepository) Upsert(ctx context.Context, rec *models.AnalyticsRecord) error {
	query := `
		INSERT INTO analytics
		(social_post_id, platform, metric_date, impressions, reach, likes, comments, shares, saves, clicks, engagement_rate, raw, synced_at)
		VALUES
		(:social_post_id, :platform, :metric_date, :impressions, :reach, :likes, :comments, :shares, :saves, :clicks, :engagement_rate, :raw, :synced_at)
		ON CONFLICT (social_post_id, metric_date) DO UPDATE SET
			impressions = EXCLUDED.impressions,
			reach = EXCLUDED.reach,
			likes = EXCLUDED.likes,
			comments = EXCLUDED.comments,
			shares = EXCLUDED.shares,
			saves = EXCLUDED.saves,
			clicks = EXCLUDED.clicks,
			engagement_rate = EXCLUDED.engagement_rate,
			raw = EXCLUDED.raw,
			synced_at = EXCLUDED.synced_at
	`
	if len(rec.Raw) == 0 {
		rec.Raw = json.RawMessage("{}")
	}
	_, err := r.db.NamedExecContext(ctx, query, rec)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *analyticsRepository) ListForPost(ctx context.Context, postID int64) ([]models.AnalyticsRecord, error) {
	query := `
		SELECT social_post_id, platform, metric_date, impressions, reach, likes, comments, shares, saves, clicks, engagement_rate, COALESCE(raw, '{}'::jsonb) AS raw, synced_at
		FROM analytics
		WHERE social_post_id = $1
		ORDER BY metric_date
	`
	var records []models.AnalyticsRecord
	if err := r.db.SelectContext(ctx, &records, query, postID); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return records, nil
}

const latestSnapshots = `
	WITH latest AS (
		SELECT DISTINCT ON (social_post_id) *
		FROM analytics
		WHERE metric_date >= $1
		ORDER BY social_post_id, metric_date DESC
	)
`

func (r *analyticsRepository) PlatformTotals(ctx context.Context, since time.Time) ([]models.PlatformTotals, error) {
	query := latestSnapshots + `
		SELECT platform,
			COUNT(*) AS posts,
			COALESCE(SUM(impressions), 0) AS impressions,
			COALESCE(SUM(reach), 0) AS reach,
			COALESCE(SUM(likes), 0) AS likes,
			COALESCE(SUM(comments), 0) AS comments,
			COALESCE(SUM(shares), 0) AS shares,
			COALESCE(SUM(saves), 0) AS saves,
			COALESCE(SUM(clicks), 0) AS clicks,
			COALESCE(SUM(engagement_rate), 0) AS engagement_rate_sum
		FROM latest
		GROUP BY platform
		ORDER BY platform
	`
	var totals []models.PlatformTotals
	if err := r.db.SelectContext(ctx, &totals, query, since); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return totals, nil
}

func (r *analyticsRepository) TopPosts(ctx context.Context, since time.Time, limit int) ([]models.PostPerformance, error) {
	query := latestSnapshots + `
		SELECT l.social_post_id, l.platform, p.content, p.published_at,
			l.impressions, l.likes, l.comments, l.shares, l.engagement_rate
		FROM latest l
		JOIN social_posts p ON p.id = l.social_post_id
		WHERE p.published_at IS NOT NULL
		ORDER BY l.engagement_rate DESC, l.impressions DESC
		LIMIT $2
	`
	var posts []models.PostPerformance
	if err := r.db.SelectContext(ctx, &posts, query, since, limit); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

func (r *analyticsRepository) DailyTrends(ctx context.Context, since time.Time) ([]models.DailyTrend, error) {
	query := `
		SELECT metric_date, platform,
			SUM(impressions) AS impressions,
			SUM(likes + comments + shares + saves + clicks) AS engagements,
			AVG(engagement_rate) AS engagement_rate
		FROM analytics
		WHERE metric_date >= $1
		GROUP BY metric_date, platform
		ORDER BY metric_date, platform
	`
	var trends []models.DailyTrend
	if err := r.db.SelectContext(ctx, &trends, query, since); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return trends, nil
}

// PostingSlots groups posts by the weekday (0 = Sunday) and hour they were published.
func (r *analyticsRepository) PostingSlots(ctx context.Context, since time.Time) ([]models.PostingSlot, error) {
	query := latestSnapshots + `
		SELECT EXTRACT(DOW FROM p.published_at)::int AS weekday,
			EXTRACT(HOUR FROM p.published_at)::int AS hour,
			COUNT(*) AS posts,
			AVG(l.engagement_rate) AS engagement_rate
		FROM latest l
		JOIN social_posts p ON p.id = l.social_post_id
		WHERE p.published_at IS NOT NULL
		GROUP BY 1, 2
		ORDER BY engagement_rate DESC, posts DESC
	`
	var slots []models.PostingSlot
	if err := r.db.SelectContext(ctx, &slots, query, since); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return slots, nil
}

func (r *analyticsRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM analytics WHERE metric_date < $1`, before)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return res.RowsAffected()
}
