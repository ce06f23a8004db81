package job

import "time"

func (r *Runner) SyncAnalytics() {
	ctx, cancel := r.context(time.Hour)
	defer cancel()

	if _, err := r.analytics.SyncAllAnalytics(ctx, r.cfg.AnalyticsDays); err != nil {
		r.logger.Error("analytics sync failed", "error", err)
	}
}
