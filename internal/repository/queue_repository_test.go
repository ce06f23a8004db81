package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postflow/internal/models"
)

func queueRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "social_post_id", "priority", "scheduled_for", "processing", "attempts",
		"last_attempt_at", "next_retry_at", "processed_at", "created_at"})
}

func TestQueueRepository_ClaimDueIsOneStatement(t *testing.T) {
	db, mock := newMock(t)
	repo := NewQueueRepository(db)
	now := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	early := now.Add(-time.Hour)
	late := now.Add(-time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta(
		"UPDATE queue_entries SET processing = TRUE, last_attempt_at = $1 WHERE id IN ( SELECT id FROM queue_entries WHERE processing = FALSE AND processed_at IS NULL AND scheduled_for <= $1 AND (next_retry_at IS NULL OR next_retry_at <= $1) ORDER BY priority DESC, scheduled_for ASC LIMIT $2 FOR UPDATE SKIP LOCKED )")).
		WithArgs(now, 10).
		WillReturnRows(queueRows().
			AddRow(1, 10, 5, late, true, 0, now, nil, nil, early).
			AddRow(2, 20, 9, late, true, 1, now, late, nil, early).
			AddRow(3, 30, 5, early, true, 0, now, nil, nil, early))

	entries, err := repo.ClaimDue(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	var order []int64
	for _, e := range entries {
		order = append(order, e.ID)
		assert.True(t, e.Processing)
	}
	assert.Equal(t, []int64{2, 3, 1}, order)
}

func TestQueueRepository_ScheduleRetryAndComplete(t *testing.T) {
	db, mock := newMock(t)
	repo := NewQueueRepository(db)
	now := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("SET processing = FALSE, attempts = $1, next_retry_at = $2 WHERE id = $3")).
		WithArgs(1, now.Add(2*time.Minute), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET processing = FALSE, attempts = $1, processed_at = $2, next_retry_at = NULL WHERE id = $3")).
		WithArgs(2, now, int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ScheduleRetry(context.Background(), nil, 4, 1, now.Add(2*time.Minute)))
	require.NoError(t, repo.Complete(context.Background(), nil, 4, 2, now))
}

func TestQueueRepository_RemoveOpenSkipsClaimedEntries(t *testing.T) {
	db, mock := newMock(t)
	repo := NewQueueRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM queue_entries WHERE social_post_id = $1 AND processed_at IS NULL AND processing = FALSE")).
		WithArgs(int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.RemoveOpen(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueueRepository_Stats(t *testing.T) {
	db, mock := newMock(t)
	repo := NewQueueRepository(db)
	now := time.Date(2025, 3, 2, 15, 30, 0, 0, time.UTC)
	midnight := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM queue_entries q JOIN social_posts p ON p.id = q.social_post_id")).
		WithArgs(now, models.PostStatusFailed, midnight, models.PostStatusPublished).
		WillReturnRows(sqlmock.NewRows([]string{"pending", "overdue", "processing", "failed", "completed_today"}).
			AddRow(4, 1, 2, 3, 5))

	stats, err := repo.Stats(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStats{Pending: 4, Overdue: 1, Processing: 2, Failed: 3, CompletedToday: 5}, *stats)
}

func TestQueueRepository_CleanupAndReleaseStale(t *testing.T) {
	db, mock := newMock(t)
	repo := NewQueueRepository(db)
	cutoff := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM queue_entries WHERE processed_at IS NOT NULL AND processed_at < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))
	mock.ExpectExec(regexp.QuoteMeta("WHERE processing = TRUE AND processed_at IS NULL AND last_attempt_at < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.Cleanup(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	n, err = repo.ReleaseStale(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestQueueRepository_TouchRequiresTheSameClaim(t *testing.T) {
	db, mock := newMock(t)
	repo := NewQueueRepository(db)
	claimed := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	now := claimed.Add(20 * time.Minute)

	touch := regexp.QuoteMeta("WHERE id = $2 AND processing = TRUE AND processed_at IS NULL AND last_attempt_at = $3")
	mock.ExpectExec(touch).WithArgs(now, int64(7), claimed).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(touch).WithArgs(now, int64(7), claimed).WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Touch(context.Background(), 7, claimed, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Touch(context.Background(), 7, claimed, now)
	require.NoError(t, err)
	assert.False(t, ok, "a released or reclaimed entry is not ours")
	require.NoError(t, mock.ExpectationsWereMet())
}
