package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/maheshrc27/postflow/internal/models"
)

type SocialPostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, p *models.SocialPost) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.SocialPost, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]*models.SocialPost, error)
	ListPublishedSince(ctx context.Context, since time.Time) ([]*models.SocialPost, error)
	MarkPublished(ctx context.Context, tx *sql.Tx, id int64, platformPostID string, at time.Time) error
	MarkFailed(ctx context.Context, tx *sql.Tx, id int64, message string, retryCount int) error
	RecordRetry(ctx context.Context, tx *sql.Tx, id int64, message string, retryCount int) error
	Reschedule(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error
	RevertToDraft(ctx context.Context, tx *sql.Tx, id int64) error
	SaveAnalytics(ctx context.Context, id int64, snapshot json.RawMessage) error
}

type socialPostRepository struct {
	db *sql.DB
}

func NewSocialPostRepository(db *sql.DB) SocialPostRepository {
	return &socialPostRepository{db: db}
}

const socialPostColumns = `id, account_id, platform, content, media, hashtags, mentions, tone, category, platform_post_id, status, scheduled_at, published_at, error_message, retry_count, max_retries, analytics, created_at, updated_at`

func scanSocialPost(row scanner) (*models.SocialPost, error) {
	var p models.SocialPost
	var analytics []byte
	err := row.Scan(&p.ID, &p.AccountID, &p.Platform, &p.Content,
		pq.Array(&p.Media), pq.Array(&p.Hashtags), pq.Array(&p.Mentions),
		&p.Tone, &p.Category, &p.PlatformPostID, &p.Status, &p.ScheduledAt, &p.PublishedAt,
		&p.ErrorMessage, &p.RetryCount, &p.MaxRetries, &analytics, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(analytics) > 0 {
		p.Analytics = json.RawMessage(analytics)
	}
	return &p, nil
}

func (r *socialPostRepository) Create(ctx context.Context, tx *sql.Tx, p *models.SocialPost) (int64, error) {
	query := `
		INSERT INTO social_posts (
			account_id,
			platform,
			content,
			media,
			hashtags,
			mentions,
			tone,
			category,
			platform_post_id,
			status,
			scheduled_at,
			published_at,
			error_message,
			max_retries
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`

	var id int64
	err := pick(r.db, tx).QueryRowContext(ctx, query,
		p.AccountID,
		p.Platform,
		p.Content,
		pq.Array(nonNil(p.Media)),
		pq.Array(nonNil(p.Hashtags)),
		pq.Array(nonNil(p.Mentions)),
		p.Tone,
		p.Category,
		p.PlatformPostID,
		p.Status,
		p.ScheduledAt,
		p.PublishedAt,
		p.ErrorMessage,
		p.MaxRetries,
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *socialPostRepository) GetByID(ctx context.Context, id int64) (*models.SocialPost, error) {
	query := `SELECT ` + socialPostColumns + ` FROM social_posts WHERE id = $1`
	p, err := scanSocialPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return p, nil
}

func (r *socialPostRepository) ListByStatus(ctx context.Context, status string, limit int) ([]*models.SocialPost, error) {
	query := `SELECT ` + socialPostColumns + ` FROM social_posts WHERE status = $1 ORDER BY created_at DESC LIMIT $2`
	return r.list(ctx, query, status, limit)
}

func (r *socialPostRepository) ListPublishedSince(ctx context.Context, since time.Time) ([]*models.SocialPost, error) {
	query := `SELECT ` + socialPostColumns + ` FROM social_posts
		WHERE status = $1 AND published_at >= $2 AND platform_post_id <> ''
		ORDER BY published_at DESC`
	return r.list(ctx, query, models.PostStatusPublished, since)
}

func (r *socialPostRepository) list(ctx context.Context, query string, args ...any) ([]*models.SocialPost, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.SocialPost
	for rows.Next() {
		p, err := scanSocialPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// MarkPublished is the only writer of platform_post_id. Posts already in a terminal
// state are left untouched.
func (r *socialPostRepository) MarkPublished(ctx context.Context, tx *sql.Tx, id int64, platformPostID string, at time.Time) error {
	query := `
		UPDATE social_posts
		SET status = $1,
			platform_post_id = $2,
			published_at = $3,
			error_message = '',
			updated_at = $3
		WHERE id = $4 AND status IN ($5, $6)
	`
	_, err := pick(r.db, tx).ExecContext(ctx, query, models.PostStatusPublished, platformPostID, at, id,
		models.PostStatusDraft, models.PostStatusScheduled)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *socialPostRepository) MarkFailed(ctx context.Context, tx *sql.Tx, id int64, message string, retryCount int) error {
	query := `
		UPDATE social_posts
		SET status = $1,
			error_message = $2,
			retry_count = $3,
			updated_at = $4
		WHERE id = $5 AND status IN ($6, $7)
	`
	_, err := pick(r.db, tx).ExecContext(ctx, query, models.PostStatusFailed, message, retryCount, time.Now(), id,
		models.PostStatusDraft, models.PostStatusScheduled)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// RecordRetry keeps the post scheduled while mirroring the queue attempt count.
func (r *socialPostRepository) RecordRetry(ctx context.Context, tx *sql.Tx, id int64, message string, retryCount int) error {
	query := `
		UPDATE social_posts
		SET error_message = $1,
			retry_count = $2,
			updated_at = $3
		WHERE id = $4
	`
	_, err := pick(r.db, tx).ExecContext(ctx, query, message, retryCount, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *socialPostRepository) Reschedule(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error {
	query := `
		UPDATE social_posts
		SET status = $1,
			scheduled_at = $2,
			retry_count = 0,
			error_message = '',
			updated_at = $3
		WHERE id = $4
	`
	_, err := pick(r.db, tx).ExecContext(ctx, query, models.PostStatusScheduled, at, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *socialPostRepository) RevertToDraft(ctx context.Context, tx *sql.Tx, id int64) error {
	query := `
		UPDATE social_posts
		SET status = $1,
			updated_at = $2
		WHERE id = $3 AND status = $4
	`
	_, err := pick(r.db, tx).ExecContext(ctx, query, models.PostStatusDraft, time.Now(), id, models.PostStatusScheduled)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// SaveAnalytics caches the latest metrics snapshot on the post.
func (r *socialPostRepository) SaveAnalytics(ctx context.Context, id int64, snapshot json.RawMessage) error {
	_, err := r.db.ExecContext(ctx, `UPDATE social_posts SET analytics = $1 WHERE id = $2`, []byte(snapshot), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
