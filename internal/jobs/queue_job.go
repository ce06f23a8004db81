package job

import "time"

// DrainQueue returns stale claims to the queue, then processes one batch.
func (r *Runner) DrainQueue() {
	ctx, cancel := r.context(10 * time.Minute)
	defer cancel()

	if r.cfg.StaleAfter > 0 {
		released, err := r.queue.ReleaseStale(ctx, r.cfg.StaleAfter)
		if err != nil {
			r.logger.Error("release stale entries failed", "error", err)
		} else if released > 0 {
			r.logger.Warn("released stale queue entries", "count", released)
		}
	}

	summary, err := r.queue.Drain(ctx)
	if err != nil {
		r.logger.Error("queue drain failed", "error", err)
		return
	}
	if summary.Claimed > 0 {
		r.logger.Info("queue drained", "claimed", summary.Claimed, "published", summary.Published,
			"retrying", summary.Retrying, "failed", summary.Failed)
	}
}

// Cleanup purges processed queue entries and old analytics rows.
func (r *Runner) Cleanup() {
	ctx, cancel := r.context(5 * time.Minute)
	defer cancel()

	if r.cfg.Retention > 0 {
		if _, err := r.queue.Cleanup(ctx, r.cfg.Retention); err != nil {
			r.logger.Error("queue cleanup failed", "error", err)
		}
	}
	if r.cfg.AnalyticsRetention > 0 {
		if _, err := r.analytics.Cleanup(ctx, r.cfg.AnalyticsRetention); err != nil {
			r.logger.Error("analytics cleanup failed", "error", err)
		}
	}
}
