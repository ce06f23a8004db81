package platform

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/telemetry"
)

// Deps are the collaborators shared by every client.
type Deps struct {
	HTTPClient   *http.Client
	UploadClient *http.Client
	Sink         telemetry.Sink
	Logger       *slog.Logger
	Poller       Poller
	// BaseURL replaces every provider host when set.
	BaseURL string
	// App holds application-level credentials (client ids and secrets) per platform.
	App map[models.Platform]map[string]string
}

func (d Deps) withDefaults() Deps {
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if d.UploadClient == nil {
		d.UploadClient = &http.Client{Timeout: 300 * time.Second}
	}
	d.Sink = telemetry.OrNop(d.Sink)
	d.Logger = telemetry.Logger(d.Logger)
	if d.Poller.Attempts == 0 {
		d.Poller = DefaultPoller()
	}
	d.BaseURL = strings.TrimRight(d.BaseURL, "/")
	return d
}

// base carries the state every client shares: credentials, transport and the cached auth result.
type base struct {
	platform models.Platform
	creds    *Credentials
	deps     Deps
	api      *apiClient
	upload   *apiClient

	authMu sync.Mutex // serializes authenticate
	mu     sync.Mutex
	authed bool
}

func newBase(p models.Platform, creds *Credentials, deps Deps, parse errorParser) base {
	return base{
		platform: p,
		creds:    creds,
		deps:     deps,
		api:      newAPIClient(p, deps.HTTPClient, deps.Sink, parse),
		upload:   newAPIClient(p, deps.UploadClient, deps.Sink, parse),
	}
}

func (b *base) Name() models.Platform {
	return b.platform
}

func (b *base) ValidateContent(text string) error {
	return Validate(b.platform, text)
}

func (b *base) GetRateLimits() models.RateLimits {
	return DefaultRateLimits(b.platform)
}

func (b *base) GetCapabilities() Capabilities {
	caps, _ := CapabilitiesOf(b.platform)
	return caps
}

// endpoint joins path onto the provider host, or onto Deps.BaseURL when one is configured.
func (b *base) endpoint(host, path string) string {
	if b.deps.BaseURL != "" {
		return b.deps.BaseURL + path
	}
	return host + path
}

func (b *base) require(key string) (string, error) {
	return b.creds.Require(string(b.platform), key)
}

// authenticate runs check and, when the token is rejected and refresh is non-nil,
// refreshes once and checks again.
func (b *base) authenticate(ctx context.Context, check, refresh func(ctx context.Context) error) error {
	b.authMu.Lock()
	defer b.authMu.Unlock()

	err := check(ctx)
	if err == nil {
		b.setAuthed(true)
		return nil
	}
	b.setAuthed(false)

	if !apperr.IsKind(err, apperr.InvalidToken) || refresh == nil {
		return err
	}

	b.deps.Logger.Info("access token rejected, refreshing", "platform", b.platform)
	if rerr := refresh(ctx); rerr != nil {
		b.deps.Logger.Warn("token refresh failed", "platform", b.platform, "error", rerr)
		return apperr.Wrap(apperr.AccountNotConnected, rerr, "token refresh failed, reconnect the account").
			WithPlatform(string(b.platform))
	}

	if err := check(ctx); err != nil {
		if apperr.IsKind(err, apperr.InvalidToken) {
			return apperr.Wrap(apperr.AccountNotConnected, err, "refreshed token was rejected, reconnect the account").
				WithPlatform(string(b.platform))
		}
		return err
	}
	b.setAuthed(true)
	return nil
}

func (b *base) setAuthed(v bool) {
	b.mu.Lock()
	b.authed = v
	b.mu.Unlock()
}

func (b *base) isAuthed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.authed
}

// isAuthenticated reports the cached result, authenticating on first use.
func (b *base) isAuthenticated(ctx context.Context, auth func(ctx context.Context) error) bool {
	if b.isAuthed() {
		return true
	}
	return auth(ctx) == nil
}

// ensure authenticates unless a previous call already succeeded.
func (b *base) ensure(ctx context.Context, auth func(ctx context.Context) error) error {
	if b.isAuthed() {
		return nil
	}
	return auth(ctx)
}

// observe drops the cached auth result when a call fails with a rejected token.
func (b *base) observe(err error) error {
	if apperr.IsKind(err, apperr.InvalidToken) {
		b.setAuthed(false)
	}
	return err
}

// gate runs the checks every publish performs before touching the network.
func (b *base) gate(ctx context.Context, text string, media []string, auth func(ctx context.Context) error) error {
	if err := Check(b.platform, text, media); err != nil {
		return err
	}
	return b.ensure(ctx, auth)
}

func (b *base) detectMedia(ctx context.Context, mediaURL string) MediaType {
	if kind := MediaTypeFromURL(mediaURL); kind != MediaUnknown {
		return kind
	}
	var kind MediaType
	_ = b.api.track(ctx, "HEAD media", func() error {
		var err error
		kind, err = headMediaType(ctx, b.deps.HTTPClient, mediaURL)
		return err
	})
	return kind
}

func (b *base) persistToken(ctx context.Context, accessToken, refreshToken string, expiresIn int64) error {
	changes := map[string]string{"access_token": accessToken}
	if refreshToken != "" {
		changes["refresh_token"] = refreshToken
	}
	if expiresIn > 0 {
		changes["expires_at"] = time.Now().Add(time.Duration(expiresIn) * time.Second).UTC().Format(time.RFC3339)
	}
	return b.creds.Update(ctx, changes)
}
