package job

import "time"

// refreshWindow is how far ahead of expiry tokens are renewed.
const refreshWindow = 30 * time.Minute

func (r *Runner) RefreshTokens() {
	ctx, cancel := r.context(5 * time.Minute)
	defer cancel()

	summary, err := r.tokens.RefreshExpiring(ctx, refreshWindow)
	if err != nil {
		r.logger.Error("token refresh failed", "error", err)
		return
	}
	if summary.Checked > 0 {
		r.logger.Info("tokens refreshed", "checked", summary.Checked,
			"refreshed", summary.Refreshed, "failed", summary.Failed)
	}
}
