package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postflow/internal/models"
)

func socialPostRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "account_id", "platform", "content", "media", "hashtags", "mentions",
		"tone", "category", "platform_post_id", "status", "scheduled_at", "published_at", "error_message",
		"retry_count", "max_retries", "analytics", "created_at", "updated_at"})
}

func TestSocialPostRepository_CreateInTransaction(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSocialPostRepository(db)
	at := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO social_posts")).
		WithArgs(int64(2), models.PlatformTelegram, "hello #go", pq.Array([]string{}), pq.Array([]string{"go"}),
			pq.Array([]string{}), "", "", "", models.PostStatusScheduled, &at, nil, "", 3).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	id, err := repo.Create(context.Background(), tx, &models.SocialPost{
		AccountID:   2,
		Platform:    models.PlatformTelegram,
		Content:     "hello #go",
		Hashtags:    []string{"go"},
		Status:      models.PostStatusScheduled,
		ScheduledAt: &at,
		MaxRetries:  3,
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, int64(11), id)
}

func TestSocialPostRepository_GetByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSocialPostRepository(db)
	now := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM social_posts WHERE id = $1")).
		WithArgs(int64(11)).
		WillReturnRows(socialPostRows().AddRow(11, 2, "instagram", "pic", "{https://cdn/x.jpg}", "{go,gophers}", "{}",
			"", "", "179", "published", nil, now, "", 0, 3, []byte(`{"likes":4}`), now, now))

	p, err := repo.GetByID(context.Background(), 11)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, []string{"https://cdn/x.jpg"}, p.Media)
	assert.Equal(t, []string{"go", "gophers"}, p.Hashtags)
	assert.Equal(t, "179", p.PlatformPostID)
	assert.JSONEq(t, `{"likes":4}`, string(p.Analytics))

	mock.ExpectQuery(regexp.QuoteMeta("FROM social_posts WHERE id = $1")).
		WithArgs(int64(12)).
		WillReturnRows(socialPostRows())

	p, err = repo.GetByID(context.Background(), 12)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestSocialPostRepository_MarkPublishedOnlyFromOpenStates(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSocialPostRepository(db)
	at := time.Date(2025, 3, 2, 9, 5, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $4 AND status IN ($5, $6)")).
		WithArgs(models.PostStatusPublished, "999", at, int64(11), models.PostStatusDraft, models.PostStatusScheduled).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkPublished(context.Background(), nil, 11, "999", at))
}

func TestSocialPostRepository_MarkFailed(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSocialPostRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE social_posts SET status = $1, error_message = $2, retry_count = $3")).
		WithArgs(models.PostStatusFailed, "facebook: page token expired", 3, sqlmock.AnyArg(), int64(11),
			models.PostStatusDraft, models.PostStatusScheduled).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkFailed(context.Background(), nil, 11, "facebook: page token expired", 3))
}

func TestSocialPostRepository_ListPublishedSince(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSocialPostRepository(db)
	since := time.Date(2025, 2, 23, 0, 0, 0, 0, time.UTC)
	now := since.Add(48 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = $1 AND published_at >= $2 AND platform_post_id <> ''")).
		WithArgs(models.PostStatusPublished, since).
		WillReturnRows(socialPostRows().
			AddRow(1, 1, "twitter", "a", "{}", "{}", "{}", "", "", "t1", "published", nil, now, "", 0, 3, nil, now, now).
			AddRow(2, 2, "linkedin", "b", "{}", "{}", "{}", "", "", "urn:li:share:2", "published", nil, now, "", 0, 3, nil, now, now))

	posts, err := repo.ListPublishedSince(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "urn:li:share:2", posts[1].PlatformPostID)
	assert.Nil(t, posts[0].Analytics)
}
