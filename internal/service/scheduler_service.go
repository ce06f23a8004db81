package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/telemetry"
)

// Waker asks the task queue to trigger a drain pass at a given time.
type Waker interface {
	WakeAt(ctx context.Context, postID int64, at time.Time) error
}

type SchedulerConfig struct {
	BatchSize  int
	MaxRetries int
	// EntryTimeout bounds a single publish. Stale claims are never released
	// sooner than twice this, so a running publish cannot be handed to another pass.
	EntryTimeout time.Duration
}

// outcomeWriteTimeout bounds the bookkeeping after a publish returns. It runs
// detached from the caller's context so a publish that went out is always recorded.
const outcomeWriteTimeout = 30 * time.Second

// DrainSummary reports the outcome of one drain pass.
type DrainSummary struct {
	Claimed   int              `json:"claimed"`
	Published int              `json:"published"`
	Retrying  int              `json:"retrying"`
	Failed    int              `json:"failed"`
	Errors    map[int64]string `json:"errors,omitempty"`
}

type SchedulerService interface {
	// Schedule stores a scheduled social post and its queue entry in one transaction.
	Schedule(ctx context.Context, post *models.SocialPost, priority int) (int64, error)
	Drain(ctx context.Context) (*DrainSummary, error)
	CancelScheduledPost(ctx context.Context, postID int64) (bool, error)
	ReschedulePost(ctx context.Context, postID int64, at time.Time) (bool, error)
	GetQueueStats(ctx context.Context) (*models.QueueStats, error)
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

type schedulerService struct {
	tx        repository.Transactor
	posts     repository.SocialPostRepository
	queue     repository.QueueRepository
	accounts  repository.AccountRepository
	history   repository.PostingHistoryRepository
	publisher Publisher
	waker     Waker
	cfg       SchedulerConfig
	logger    *slog.Logger
	now       func() time.Time
}

func NewSchedulerService(
	tx repository.Transactor,
	posts repository.SocialPostRepository,
	queue repository.QueueRepository,
	accounts repository.AccountRepository,
	history repository.PostingHistoryRepository,
	publisher Publisher,
	waker Waker,
	cfg SchedulerConfig,
	logger *slog.Logger) SchedulerService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.EntryTimeout <= 0 {
		cfg.EntryTimeout = 10 * time.Minute
	}
	return &schedulerService{
		tx:        tx,
		posts:     posts,
		queue:     queue,
		accounts:  accounts,
		history:   history,
		publisher: publisher,
		waker:     waker,
		cfg:       cfg,
		logger:    telemetry.Logger(logger),
		now:       time.Now,
	}
}

// Backoff is the delay before the next try after the given number of failed attempts.
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(1<<attempts) * time.Minute
}

func (s *schedulerService) Schedule(ctx context.Context, post *models.SocialPost, priority int) (int64, error) {
	if post.ScheduledAt == nil {
		return 0, apperr.New(apperr.InvalidInput, "scheduled time is required")
	}
	if priority == 0 {
		priority = models.DefaultPriority
	}
	if priority < models.MinPriority || priority > models.MaxPriority {
		return 0, apperr.Newf(apperr.InvalidInput, "priority must be between %d and %d", models.MinPriority, models.MaxPriority)
	}
	post.Status = models.PostStatusScheduled
	if post.MaxRetries <= 0 {
		post.MaxRetries = s.cfg.MaxRetries
	}

	var postID int64
	err := s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		var err error
		postID, err = s.posts.Create(ctx, tx, post)
		if err != nil {
			return err
		}
		_, err = s.queue.Create(ctx, tx, &models.QueueEntry{
			SocialPostID: postID,
			Priority:     priority,
			ScheduledFor: *post.ScheduledAt,
		})
		return err
	})
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, err, "store scheduled post")
	}
	post.ID = postID

	s.wake(ctx, postID, *post.ScheduledAt)
	return postID, nil
}

// wake is best effort: the periodic drain picks the entry up regardless.
func (s *schedulerService) wake(ctx context.Context, postID int64, at time.Time) {
	if s.waker == nil {
		return
	}
	if err := s.waker.WakeAt(ctx, postID, at); err != nil {
		s.logger.Warn("failed to enqueue wake-up task", "social_post_id", postID, "error", err)
	}
}

// Drain processes one batch of due entries. A failing entry never aborts the pass.
func (s *schedulerService) Drain(ctx context.Context) (*DrainSummary, error) {
	now := s.now()
	entries, err := s.queue.ClaimDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "claim due entries")
	}

	summary := &DrainSummary{Claimed: len(entries), Errors: map[int64]string{}}
	for i, e := range entries {
		if ctx.Err() != nil {
			// Hand back what this pass will not get to instead of leaving it claimed.
			bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), outcomeWriteTimeout)
			for _, rest := range entries[i:] {
				s.release(bg, rest)
			}
			cancel()
			s.logger.Warn("drain pass interrupted", "released", len(entries)-i, "error", ctx.Err())
			break
		}
		outcome, err := s.process(ctx, e)
		switch outcome {
		case outcomePublished:
			summary.Published++
		case outcomeRetrying:
			summary.Retrying++
		case outcomeFailed:
			summary.Failed++
		}
		if err != nil {
			summary.Errors[e.SocialPostID] = err.Error()
		}
	}

	if summary.Claimed > 0 {
		s.logger.Info("drain pass finished", "claimed", summary.Claimed, "published", summary.Published,
			"retrying", summary.Retrying, "failed", summary.Failed)
	}
	return summary, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomePublished
	outcomeRetrying
	outcomeFailed
)

func (s *schedulerService) process(ctx context.Context, e *models.QueueEntry) (outcome, error) {
	post, err := s.posts.GetByID(ctx, e.SocialPostID)
	if err != nil {
		s.release(ctx, e)
		return outcomeSkipped, apperr.Wrap(apperr.Internal, err, "load social post")
	}
	if post == nil || post.Status != models.PostStatusScheduled {
		// Nothing left to publish. Close the entry so it is not claimed again.
		if err := s.queue.Complete(ctx, nil, e.ID, e.Attempts, s.now()); err != nil {
			s.logger.Error("failed to close orphaned queue entry", "entry_id", e.ID, "error", err)
		}
		return outcomeSkipped, nil
	}

	account, err := s.accounts.GetByID(ctx, post.AccountID)
	if err != nil {
		s.release(ctx, e)
		return outcomeSkipped, apperr.Wrap(apperr.Internal, err, "load account")
	}

	// Restamp the claim so staleness counts from dispatch, not from the start
	// of the batch. A lost claim means another pass owns the entry now.
	started := s.now()
	if e.LastAttemptAt != nil {
		owned, err := s.queue.Touch(ctx, e.ID, *e.LastAttemptAt, started)
		if err != nil {
			s.release(ctx, e)
			return outcomeSkipped, apperr.Wrap(apperr.Internal, err, "stamp queue entry")
		}
		if !owned {
			s.logger.Warn("queue entry claimed elsewhere, skipping", "entry_id", e.ID, "social_post_id", post.ID)
			return outcomeSkipped, nil
		}
	}

	pubCtx, cancelPub := context.WithTimeout(ctx, s.cfg.EntryTimeout)
	platformPostID, pubErr := s.publisher.Publish(pubCtx, account, post.Content, post.Media)
	cancelPub()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), outcomeWriteTimeout)
	defer cancel()
	attempts := e.Attempts + 1
	now := s.now()
	s.record(ctx, post, attempts, pubErr, now.Sub(started))

	if pubErr == nil {
		err := s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
			if err := s.posts.MarkPublished(ctx, tx, post.ID, platformPostID, now); err != nil {
				return err
			}
			return s.queue.Complete(ctx, tx, e.ID, attempts, now)
		})
		if err != nil {
			s.logger.Error("published but failed to record outcome", "social_post_id", post.ID, "error", err)
			return outcomePublished, apperr.Wrap(apperr.Internal, err, "record published post")
		}
		return outcomePublished, nil
	}

	maxRetries := post.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.cfg.MaxRetries
	}
	message := pubErr.Error()

	if !apperr.Retryable(pubErr) || attempts >= maxRetries {
		err := s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
			if err := s.posts.MarkFailed(ctx, tx, post.ID, message, attempts); err != nil {
				return err
			}
			return s.queue.Complete(ctx, tx, e.ID, attempts, now)
		})
		if err != nil {
			s.logger.Error("failed to record terminal failure", "social_post_id", post.ID, "error", err)
		}
		s.logger.Warn("scheduled post failed", "social_post_id", post.ID, "platform", post.Platform,
			"attempts", attempts, "kind", apperr.KindOf(pubErr), "error", pubErr)
		return outcomeFailed, pubErr
	}

	delay := Backoff(attempts)
	if wait := apperr.RetryAfter(pubErr); wait > delay {
		delay = wait
	}
	next := now.Add(delay)
	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		if err := s.queue.ScheduleRetry(ctx, tx, e.ID, attempts, next); err != nil {
			return err
		}
		return s.posts.RecordRetry(ctx, tx, post.ID, message, attempts)
	})
	if err != nil {
		s.logger.Error("failed to schedule retry", "social_post_id", post.ID, "error", err)
	}
	s.logger.Info("scheduled post will be retried", "social_post_id", post.ID, "platform", post.Platform,
		"attempts", attempts, "next_retry_at", next, "error", pubErr)
	return outcomeRetrying, pubErr
}

// release hands a claimed entry back without counting an attempt.
func (s *schedulerService) release(ctx context.Context, e *models.QueueEntry) {
	if err := s.queue.Release(ctx, e.ID); err != nil {
		s.logger.Error("failed to release queue entry", "entry_id", e.ID, "error", err)
	}
}

func (s *schedulerService) record(ctx context.Context, post *models.SocialPost, attempt int, err error, took time.Duration) {
	if s.history == nil {
		return
	}
	h := &models.PostingHistory{
		SocialPostID: post.ID,
		Platform:     post.Platform,
		BatchID:      fmt.Sprintf("queue-%d", post.ID),
		Attempt:      attempt,
		Success:      err == nil,
		DurationMs:   took.Milliseconds(),
	}
	if err != nil {
		h.ErrorKind = string(apperr.KindOf(err))
		h.ErrorMessage = err.Error()
	}
	if _, err := s.history.Create(ctx, h); err != nil {
		s.logger.Warn("failed to save posting history", "social_post_id", post.ID, "error", err)
	}
}

func (s *schedulerService) CancelScheduledPost(ctx context.Context, postID int64) (bool, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, err, "load social post")
	}
	if post == nil {
		return false, apperr.Newf(apperr.NotFound, "social post %d not found", postID)
	}
	if post.Status != models.PostStatusScheduled {
		return false, apperr.Newf(apperr.InvalidState, "social post %d is %s, not scheduled", postID, post.Status)
	}

	var removed bool
	err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		var err error
		removed, err = s.queue.RemoveOpen(ctx, tx, postID)
		if err != nil || !removed {
			return err
		}
		return s.posts.RevertToDraft(ctx, tx, postID)
	})
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, err, "cancel scheduled post")
	}
	if !removed {
		return false, apperr.Newf(apperr.InvalidState, "social post %d is being published", postID)
	}
	s.logger.Info("scheduled post cancelled", "social_post_id", postID)
	return true, nil
}

// ReschedulePost moves a scheduled post, or requeues a cancelled draft, with a fresh retry budget.
func (s *schedulerService) ReschedulePost(ctx context.Context, postID int64, at time.Time) (bool, error) {
	if at.IsZero() {
		return false, apperr.New(apperr.InvalidInput, "new time is required")
	}
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, err, "load social post")
	}
	if post == nil {
		return false, apperr.Newf(apperr.NotFound, "social post %d not found", postID)
	}

	var moved bool
	switch post.Status {
	case models.PostStatusScheduled:
		err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
			var err error
			moved, err = s.queue.Reschedule(ctx, tx, postID, at)
			if err != nil || !moved {
				return err
			}
			return s.posts.Reschedule(ctx, tx, postID, at)
		})
	case models.PostStatusDraft:
		err = s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
			if _, err := s.queue.Create(ctx, tx, &models.QueueEntry{
				SocialPostID: postID,
				Priority:     models.DefaultPriority,
				ScheduledFor: at,
			}); err != nil {
				return err
			}
			moved = true
			return s.posts.Reschedule(ctx, tx, postID, at)
		})
	default:
		return false, apperr.Newf(apperr.InvalidState, "social post %d is %s and cannot be rescheduled", postID, post.Status)
	}
	if err != nil {
		return false, apperr.Wrap(apperr.Internal, err, "reschedule post")
	}
	if !moved {
		return false, apperr.Newf(apperr.InvalidState, "social post %d is being published", postID)
	}

	s.wake(ctx, postID, at)
	return true, nil
}

func (s *schedulerService) GetQueueStats(ctx context.Context) (*models.QueueStats, error) {
	stats, err := s.queue.Stats(ctx, s.now())
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "queue stats")
	}
	return stats, nil
}

func (s *schedulerService) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.queue.Cleanup(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, err, "queue cleanup")
	}
	if n > 0 {
		s.logger.Info("purged closed queue entries", "count", n)
	}
	return n, nil
}

// ReleaseStale returns claims abandoned by a crashed worker to the queue. The age is
// raised to twice the entry timeout when shorter, so live publishes are left alone.
func (s *schedulerService) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if floor := 2 * s.cfg.EntryTimeout; olderThan < floor {
		olderThan = floor
	}
	n, err := s.queue.ReleaseStale(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, err, "release stale entries")
	}
	if n > 0 {
		s.logger.Warn("released stale queue entries", "count", n)
	}
	return n, nil
}
