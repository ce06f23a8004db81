package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/ratelimit"
	"github.com/maheshrc27/postflow/internal/telemetry"
)

// ActionPost is the rate limiter action charged for every publish call.
const ActionPost = "post"

// Publisher is the single path from content to a provider, shared by immediate
// publishing and the queue drain.
type Publisher interface {
	// Publish resolves the account's client, checks the platform's rate limit,
	// validates the content and publishes it. The rate counter is charged once
	// the provider has been called, whatever the outcome.
	Publish(ctx context.Context, account *models.Account, content string, media []string) (string, error)
}

type publisher struct {
	clients ClientResolver
	limiter ratelimit.RateLimiter
	logger  *slog.Logger
}

func NewPublisher(clients ClientResolver, limiter ratelimit.RateLimiter, logger *slog.Logger) Publisher {
	return &publisher{
		clients: clients,
		limiter: limiter,
		logger:  telemetry.Logger(logger),
	}
}

func (p *publisher) Publish(ctx context.Context, account *models.Account, content string, media []string) (string, error) {
	if account == nil {
		return "", apperr.New(apperr.AccountNotConfigured, "no account configured")
	}
	if account.Status != models.AccountStatusActive {
		return "", apperr.Newf(apperr.AccountNotConnected, "account %d is %s", account.ID, account.Status).
			WithPlatform(string(account.Platform))
	}

	client, err := p.clients.ForAccount(ctx, account)
	if err != nil {
		return "", err
	}
	name := client.Name()

	allowed, err := p.limiter.CheckLimit(ctx, name, ActionPost)
	if err != nil {
		return "", err
	}
	if !allowed {
		wait, err := p.limiter.ShouldWait(ctx, name, ActionPost)
		if err != nil {
			return "", err
		}
		return "", rateLimited(name, wait)
	}

	if err := platform.CheckMedia(name, media); err != nil {
		return "", err
	}
	if err := client.ValidateContent(content); err != nil {
		return "", err
	}

	started := time.Now()
	postID, err := client.Publish(ctx, content, media)
	// The call went out, so it is charged even if ctx ended meanwhile.
	if incErr := p.limiter.Increment(context.WithoutCancel(ctx), name, ActionPost); incErr != nil {
		p.logger.Warn("failed to charge rate counter", "platform", name, "error", incErr)
	}
	if err != nil {
		p.logger.Warn("publish failed", "platform", name, "account_id", account.ID,
			"kind", apperr.KindOf(err), "duration", time.Since(started), "error", err)
		return "", err
	}

	p.logger.Info("published", "platform", name, "account_id", account.ID, "post_id", postID,
		"duration", time.Since(started))
	return postID, nil
}

func rateLimited(p models.Platform, wait time.Duration) error {
	secs := int(math.Ceil(wait.Seconds()))
	return apperr.New(apperr.RateLimitExceeded, fmt.Sprintf("rate limit reached, retry in %ds", secs)).
		WithPlatform(string(p)).
		WithRetryAfter(wait)
}
