package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/telemetry"
)

type SyncSummary struct {
	Total   int              `json:"total"`
	Synced  int              `json:"synced"`
	Limited int              `json:"limited"`
	Failed  int              `json:"failed"`
	Errors  map[int64]string `json:"errors,omitempty"`
}

type PlatformSummary struct {
	Platform          models.Platform `json:"platform"`
	Posts             int64           `json:"posts"`
	Impressions       int64           `json:"impressions"`
	Reach             int64           `json:"reach"`
	Engagements       int64           `json:"engagements"`
	AvgImpressions    float64         `json:"avg_impressions"`
	AvgEngagements    float64         `json:"avg_engagements"`
	AvgEngagementRate float64         `json:"avg_engagement_rate"`
}

type BestTime struct {
	Weekday           string  `json:"weekday"`
	Hour              int     `json:"hour"`
	Posts             int64   `json:"posts"`
	AvgEngagementRate float64 `json:"avg_engagement_rate"`
}

type PlatformComparison struct {
	Platforms []PlatformSummary `json:"platforms"`
	// Shares are percentages of the window's totals.
	ImpressionShare map[models.Platform]float64 `json:"impression_share"`
	EngagementShare map[models.Platform]float64 `json:"engagement_share"`
	BestPlatform    models.Platform             `json:"best_platform,omitempty"`
}

type ReportTotals struct {
	Posts             int64   `json:"posts"`
	Impressions       int64   `json:"impressions"`
	Engagements       int64   `json:"engagements"`
	AvgEngagementRate float64 `json:"avg_engagement_rate"`
}

type Report struct {
	Days        int                      `json:"days"`
	Since       time.Time                `json:"since"`
	GeneratedAt time.Time                `json:"generated_at"`
	Totals      ReportTotals             `json:"totals"`
	Comparison  *PlatformComparison      `json:"comparison"`
	TopPosts    []models.PostPerformance `json:"top_posts"`
	Trends      []models.DailyTrend      `json:"trends"`
	BestTimes   []BestTime               `json:"best_times"`
}

type AnalyticsService interface {
	SyncPostAnalytics(ctx context.Context, postID int64) (*models.AnalyticsRecord, error)
	SyncAllAnalytics(ctx context.Context, days int) (*SyncSummary, error)
	GetPlatformSummary(ctx context.Context, days int) ([]PlatformSummary, error)
	GetTopPosts(ctx context.Context, days, limit int) ([]models.PostPerformance, error)
	GetEngagementTrends(ctx context.Context, days int) ([]models.DailyTrend, error)
	GetBestPostingTimes(ctx context.Context, days, limit int) ([]BestTime, error)
	GetPlatformComparison(ctx context.Context, days int) (*PlatformComparison, error)
	GenerateReport(ctx context.Context, days int) (*Report, error)
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

type analyticsService struct {
	posts     repository.SocialPostRepository
	accounts  repository.AccountRepository
	analytics repository.AnalyticsRepository
	clients   ClientResolver
	delay     time.Duration
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewAnalyticsService builds the collector. delay is the pause between provider
// calls of a bulk sync.
func NewAnalyticsService(
	posts repository.SocialPostRepository,
	accounts repository.AccountRepository,
	analytics repository.AnalyticsRepository,
	clients ClientResolver,
	delay time.Duration,
	logger *slog.Logger) AnalyticsService {
	return &analyticsService{
		posts:     posts,
		accounts:  accounts,
		analytics: analytics,
		clients:   clients,
		delay:     delay,
		logger:    telemetry.Logger(logger),
		now:       time.Now,
		sleep:     platform.SleepContext,
	}
}

func (s *analyticsService) SyncPostAnalytics(ctx context.Context, postID int64) (*models.AnalyticsRecord, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "load social post")
	}
	if post == nil {
		return nil, apperr.Newf(apperr.NotFound, "social post %d not found", postID)
	}
	if post.Status != models.PostStatusPublished || post.PlatformPostID == "" {
		return nil, apperr.Newf(apperr.InvalidState, "social post %d is %s, not published", postID, post.Status)
	}

	account, err := s.accounts.GetByID(ctx, post.AccountID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "load account")
	}
	client, err := s.clients.ForAccount(ctx, account)
	if err != nil {
		return nil, err
	}

	m, err := client.GetAnalytics(ctx, post.PlatformPostID)
	if err != nil {
		return nil, err
	}

	snapshot, err := json.Marshal(m)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "encode metrics")
	}
	raw := m.Raw
	if len(raw) == 0 {
		raw = snapshot
	}

	now := s.now().UTC()
	rec := &models.AnalyticsRecord{
		SocialPostID:   post.ID,
		Platform:       post.Platform,
		MetricDate:     time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		Impressions:    m.Impressions,
		Reach:          m.Reach,
		Likes:          m.Likes,
		Comments:       m.Comments,
		Shares:         m.Shares,
		Saves:          m.Saves,
		Clicks:         m.Clicks,
		EngagementRate: m.EngagementRate,
		Raw:            raw,
		SyncedAt:       now,
	}
	if err := s.analytics.Upsert(ctx, rec); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "store analytics")
	}
	if err := s.posts.SaveAnalytics(ctx, post.ID, snapshot); err != nil {
		s.logger.Warn("failed to cache metrics on post", "social_post_id", post.ID, "error", err)
	}
	if m.Limited {
		return rec, apperr.Newf(apperr.AnalyticsUnavailable, "%s exposes limited analytics: %s", post.Platform, m.Note).
			WithPlatform(string(post.Platform))
	}
	return rec, nil
}

// SyncAllAnalytics syncs every post published in the trailing window, pausing
// between provider calls.
func (s *analyticsService) SyncAllAnalytics(ctx context.Context, days int) (*SyncSummary, error) {
	if days <= 0 {
		days = 7
	}
	posts, err := s.posts.ListPublishedSince(ctx, s.now().AddDate(0, 0, -days))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "list published posts")
	}

	summary := &SyncSummary{Total: len(posts), Errors: map[int64]string{}}
	for i, post := range posts {
		if i > 0 && s.delay > 0 {
			if err := s.sleep(ctx, s.delay); err != nil {
				return summary, err
			}
		}
		_, err := s.SyncPostAnalytics(ctx, post.ID)
		switch {
		case err == nil:
			summary.Synced++
		case apperr.IsKind(err, apperr.AnalyticsUnavailable):
			summary.Limited++
		default:
			summary.Failed++
			summary.Errors[post.ID] = err.Error()
		}
	}

	s.logger.Info("analytics sync finished", "total", summary.Total, "synced", summary.Synced,
		"limited", summary.Limited, "failed", summary.Failed)
	return summary, nil
}

func (s *analyticsService) since(days int) time.Time {
	if days <= 0 {
		days = 30
	}
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -days)
}

func (s *analyticsService) GetPlatformSummary(ctx context.Context, days int) ([]PlatformSummary, error) {
	totals, err := s.analytics.PlatformTotals(ctx, s.since(days))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "platform totals")
	}
	out := make([]PlatformSummary, 0, len(totals))
	for _, t := range totals {
		out = append(out, summarize(t))
	}
	return out, nil
}

func summarize(t models.PlatformTotals) PlatformSummary {
	engagements := t.Likes + t.Comments + t.Shares + t.Saves + t.Clicks
	return PlatformSummary{
		Platform:          t.Platform,
		Posts:             t.Posts,
		Impressions:       t.Impressions,
		Reach:             t.Reach,
		Engagements:       engagements,
		AvgImpressions:    ratio(float64(t.Impressions), float64(t.Posts)),
		AvgEngagements:    ratio(float64(engagements), float64(t.Posts)),
		AvgEngagementRate: ratio(t.EngagementRateSum, float64(t.Posts)),
	}
}

// ratio is a/b, or 0 when b is 0.
func ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func (s *analyticsService) GetTopPosts(ctx context.Context, days, limit int) ([]models.PostPerformance, error) {
	if limit <= 0 {
		limit = 10
	}
	posts, err := s.analytics.TopPosts(ctx, s.since(days), limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "top posts")
	}
	return posts, nil
}

func (s *analyticsService) GetEngagementTrends(ctx context.Context, days int) ([]models.DailyTrend, error) {
	trends, err := s.analytics.DailyTrends(ctx, s.since(days))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "engagement trends")
	}
	return trends, nil
}

func (s *analyticsService) GetBestPostingTimes(ctx context.Context, days, limit int) ([]BestTime, error) {
	slots, err := s.analytics.PostingSlots(ctx, s.since(days))
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "posting slots")
	}
	slices.SortStableFunc(slots, func(a, b models.PostingSlot) int {
		switch {
		case a.EngagementRate > b.EngagementRate:
			return -1
		case a.EngagementRate < b.EngagementRate:
			return 1
		}
		return int(b.Posts - a.Posts)
	})
	if limit > 0 && len(slots) > limit {
		slots = slots[:limit]
	}

	out := make([]BestTime, 0, len(slots))
	for _, sl := range slots {
		out = append(out, BestTime{
			Weekday:           time.Weekday(sl.Weekday % 7).String(),
			Hour:              sl.Hour,
			Posts:             sl.Posts,
			AvgEngagementRate: sl.EngagementRate,
		})
	}
	return out, nil
}

func (s *analyticsService) GetPlatformComparison(ctx context.Context, days int) (*PlatformComparison, error) {
	summary, err := s.GetPlatformSummary(ctx, days)
	if err != nil {
		return nil, err
	}
	return compare(summary), nil
}

func compare(summary []PlatformSummary) *PlatformComparison {
	var impressions, engagements int64
	for _, p := range summary {
		impressions += p.Impressions
		engagements += p.Engagements
	}

	c := &PlatformComparison{
		Platforms:       summary,
		ImpressionShare: make(map[models.Platform]float64, len(summary)),
		EngagementShare: make(map[models.Platform]float64, len(summary)),
	}
	best := -1.0
	for _, p := range summary {
		c.ImpressionShare[p.Platform] = ratio(float64(p.Impressions), float64(impressions)) * 100
		c.EngagementShare[p.Platform] = ratio(float64(p.Engagements), float64(engagements)) * 100
		if p.Posts > 0 && p.AvgEngagementRate > best {
			best = p.AvgEngagementRate
			c.BestPlatform = p.Platform
		}
	}
	return c
}

func (s *analyticsService) GenerateReport(ctx context.Context, days int) (*Report, error) {
	if days <= 0 {
		days = 30
	}
	summary, err := s.GetPlatformSummary(ctx, days)
	if err != nil {
		return nil, err
	}
	top, err := s.GetTopPosts(ctx, days, 10)
	if err != nil {
		return nil, err
	}
	trends, err := s.GetEngagementTrends(ctx, days)
	if err != nil {
		return nil, err
	}
	best, err := s.GetBestPostingTimes(ctx, days, 5)
	if err != nil {
		return nil, err
	}

	var totals ReportTotals
	var rateSum float64
	for _, p := range summary {
		totals.Posts += p.Posts
		totals.Impressions += p.Impressions
		totals.Engagements += p.Engagements
		rateSum += p.AvgEngagementRate * float64(p.Posts)
	}
	totals.AvgEngagementRate = ratio(rateSum, float64(totals.Posts))

	return &Report{
		Days:        days,
		Since:       s.since(days),
		GeneratedAt: s.now().UTC(),
		Totals:      totals,
		Comparison:  compare(summary),
		TopPosts:    top,
		Trends:      trends,
		BestTimes:   best,
	}, nil
}

func (s *analyticsService) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.analytics.Cleanup(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, err, "analytics cleanup")
	}
	if n > 0 {
		s.logger.Info("purged analytics records", "count", n)
	}
	return n, nil
}
