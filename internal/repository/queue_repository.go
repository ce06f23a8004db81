package repository

import (
	"cmp"
	"context"
	"database/sql"
	"log/slog"
	"slices"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

type QueueRepository interface {
	Create(ctx context.Context, tx *sql.Tx, e *models.QueueEntry) (int64, error)
	GetOpenByPostID(ctx context.Context, postID int64) (*models.QueueEntry, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.QueueEntry, error)
	Touch(ctx context.Context, id int64, claimedAt, at time.Time) (bool, error)
	Complete(ctx context.Context, tx *sql.Tx, id int64, attempts int, at time.Time) error
	ScheduleRetry(ctx context.Context, tx *sql.Tx, id int64, attempts int, next time.Time) error
	Release(ctx context.Context, id int64) error
	RemoveOpen(ctx context.Context, tx *sql.Tx, postID int64) (bool, error)
	Reschedule(ctx context.Context, tx *sql.Tx, postID int64, at time.Time) (bool, error)
	Stats(ctx context.Context, now time.Time) (*models.QueueStats, error)
	Cleanup(ctx context.Context, before time.Time) (int64, error)
	ReleaseStale(ctx context.Context, before time.Time) (int64, error)
}

type queueRepository struct {
	db *sql.DB
}

func NewQueueRepository(db *sql.DB) QueueRepository {
	return &queueRepository{db: db}
}

const queueColumns = `id, social_post_id, priority, scheduled_for, processing, attempts, last_attempt_at, next_retry_at, processed_at, created_at`

func scanQueueEntry(row scanner) (*models.QueueEntry, error) {
	var e models.QueueEntry
	err := row.Scan(&e.ID, &e.SocialPostID, &e.Priority, &e.ScheduledFor, &e.Processing, &e.Attempts,
		&e.LastAttemptAt, &e.NextRetryAt, &e.ProcessedAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *queueRepository) Create(ctx context.Context, tx *sql.Tx, e *models.QueueEntry) (int64, error) {
	query := `
		INSERT INTO queue_entries (social_post_id, priority, scheduled_for)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	var id int64
	err := pick(r.db, tx).QueryRowContext(ctx, query, e.SocialPostID, e.Priority, e.ScheduledFor).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

// GetOpenByPostID returns the entry of the post that has not reached a terminal state.
func (r *queueRepository) GetOpenByPostID(ctx context.Context, postID int64) (*models.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM queue_entries
		WHERE social_post_id = $1 AND processed_at IS NULL
		ORDER BY id DESC
		LIMIT 1`
	e, err := scanQueueEntry(r.db.QueryRowContext(ctx, query, postID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return e, nil
}

// ClaimDue marks up to limit due entries as processing and returns them, highest
// priority first then earliest scheduled. Selection and marking happen in one
// statement and rows locked by a concurrent pass are skipped, so two passes never
// claim the same entry.
func (r *queueRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.QueueEntry, error) {
	query := `
		UPDATE queue_entries
		SET processing = TRUE,
			last_attempt_at = $1
		WHERE id IN (
			SELECT id FROM queue_entries
			WHERE processing = FALSE
				AND processed_at IS NULL
				AND scheduled_for <= $1
				AND (next_retry_at IS NULL OR next_retry_at <= $1)
			ORDER BY priority DESC, scheduled_for ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + queueColumns

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var entries []*models.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// RETURNING does not preserve the subquery order.
	slices.SortStableFunc(entries, func(a, b *models.QueueEntry) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return a.ScheduledFor.Compare(b.ScheduledFor)
	})
	return entries, nil
}

// Touch restamps a claimed entry just before it is dispatched. It only matches while
// the claim identified by claimedAt still holds; false means the entry was released
// and possibly claimed by another pass, so the caller must not publish it.
func (r *queueRepository) Touch(ctx context.Context, id int64, claimedAt, at time.Time) (bool, error) {
	query := `
		UPDATE queue_entries
		SET last_attempt_at = $1
		WHERE id = $2 AND processing = TRUE AND processed_at IS NULL AND last_attempt_at = $3
	`
	res, err := r.db.ExecContext(ctx, query, at, id, claimedAt)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Complete closes the entry. Closed entries are never claimed again.
func (r *queueRepository) Complete(ctx context.Context, tx *sql.Tx, id int64, attempts int, at time.Time) error {
	query := `
		UPDATE queue_entries
		SET processing = FALSE,
			attempts = $1,
			processed_at = $2,
			next_retry_at = NULL
		WHERE id = $3
	`
	_, err := pick(r.db, tx).ExecContext(ctx, query, attempts, at, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *queueRepository) ScheduleRetry(ctx context.Context, tx *sql.Tx, id int64, attempts int, next time.Time) error {
	query := `
		UPDATE queue_entries
		SET processing = FALSE,
			attempts = $1,
			next_retry_at = $2
		WHERE id = $3
	`
	_, err := pick(r.db, tx).ExecContext(ctx, query, attempts, next, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// Release clears the processing flag without touching the attempt bookkeeping.
func (r *queueRepository) Release(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE queue_entries SET processing = FALSE WHERE id = $1`, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// RemoveOpen deletes the post's entry if it is neither closed nor being processed.
func (r *queueRepository) RemoveOpen(ctx context.Context, tx *sql.Tx, postID int64) (bool, error) {
	query := `DELETE FROM queue_entries WHERE social_post_id = $1 AND processed_at IS NULL AND processing = FALSE`
	res, err := pick(r.db, tx).ExecContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *queueRepository) Reschedule(ctx context.Context, tx *sql.Tx, postID int64, at time.Time) (bool, error) {
	query := `
		UPDATE queue_entries
		SET scheduled_for = $1,
			attempts = 0,
			next_retry_at = NULL
		WHERE social_post_id = $2 AND processed_at IS NULL AND processing = FALSE
	`
	res, err := pick(r.db, tx).ExecContext(ctx, query, at, postID)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *queueRepository) Stats(ctx context.Context, now time.Time) (*models.QueueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE q.processed_at IS NULL AND q.processing = FALSE),
			COUNT(*) FILTER (WHERE q.processed_at IS NULL AND q.processing = FALSE AND q.scheduled_for < $1),
			COUNT(*) FILTER (WHERE q.processing = TRUE),
			COUNT(*) FILTER (WHERE q.processed_at IS NOT NULL AND p.status = $2),
			COUNT(*) FILTER (WHERE q.processed_at >= $3 AND p.status = $4)
		FROM queue_entries q
		JOIN social_posts p ON p.id = q.social_post_id
	`
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var s models.QueueStats
	err := r.db.QueryRowContext(ctx, query, now, models.PostStatusFailed, startOfDay, models.PostStatusPublished).
		Scan(&s.Pending, &s.Overdue, &s.Processing, &s.Failed, &s.CompletedToday)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return &s, nil
}

// Cleanup purges closed entries processed before the given time.
func (r *queueRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM queue_entries WHERE processed_at IS NOT NULL AND processed_at < $1`, before)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return res.RowsAffected()
}

// ReleaseStale clears the processing flag of entries claimed before the given time
// and never finished, as left behind by a crashed worker.
func (r *queueRepository) ReleaseStale(ctx context.Context, before time.Time) (int64, error) {
	query := `
		UPDATE queue_entries
		SET processing = FALSE
		WHERE processing = TRUE AND processed_at IS NULL AND last_attempt_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return res.RowsAffected()
}
