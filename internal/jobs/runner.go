// Package job runs the periodic maintenance work of the server on cron schedules.
package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/telemetry"
)

// QueueMaintainer is the scheduler surface the queue jobs need.
type QueueMaintainer interface {
	Drain(ctx context.Context) (*service.DrainSummary, error)
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error)
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

type AnalyticsSyncer interface {
	SyncAllAnalytics(ctx context.Context, days int) (*service.SyncSummary, error)
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

type TokenRefresher interface {
	RefreshExpiring(ctx context.Context, within time.Duration) (*service.RefreshSummary, error)
}

// Runner owns the cron scheduler. Every job gets its own bounded context.
type Runner struct {
	queue     QueueMaintainer
	analytics AnalyticsSyncer
	tokens    TokenRefresher
	cfg       config.Queue
	specs     config.Cron
	logger    *slog.Logger
	cron      *cron.Cron
}

func NewRunner(
	queue QueueMaintainer,
	analytics AnalyticsSyncer,
	tokens TokenRefresher,
	cfg config.Queue,
	specs config.Cron,
	logger *slog.Logger) *Runner {
	return &Runner{
		queue:     queue,
		analytics: analytics,
		tokens:    tokens,
		cfg:       cfg,
		specs:     specs,
		logger:    telemetry.Logger(logger),
		cron:      cron.New(),
	}
}

// Start registers every job with a non-empty schedule and starts the scheduler.
func (r *Runner) Start() error {
	jobs := []struct {
		spec string
		fn   func()
	}{
		{r.specs.Drain, r.DrainQueue},
		{r.specs.Analytics, r.SyncAnalytics},
		{r.specs.Cleanup, r.Cleanup},
		{r.specs.TokenRefresh, r.RefreshTokens},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if err := r.cron.AddFunc(j.spec, j.fn); err != nil {
			return err
		}
	}
	r.cron.Start()
	return nil
}

func (r *Runner) Stop() {
	r.cron.Stop()
}

func (r *Runner) context(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
