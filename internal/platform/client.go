// Package platform hides each social network's wire protocol behind one Client contract.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
)

type Client interface {
	Name() models.Platform
	// Authenticate runs an identity check, refreshing the token once if the provider rejects it.
	Authenticate(ctx context.Context) error
	IsAuthenticated(ctx context.Context) bool
	ValidateContent(text string) error
	Publish(ctx context.Context, text string, media []string) (string, error)
	GetAnalytics(ctx context.Context, postID string) (*Metrics, error)
	GetRateLimits() models.RateLimits
	GetCapabilities() Capabilities
	DeletePost(ctx context.Context, postID string) (bool, error)
}

// Refresher is implemented by clients that can renew their access token outside of Authenticate.
type Refresher interface {
	RefreshToken(ctx context.Context) error
}

type Metrics struct {
	Impressions    int64           `json:"impressions"`
	Reach          int64           `json:"reach"`
	Likes          int64           `json:"likes"`
	Comments       int64           `json:"comments"`
	Shares         int64           `json:"shares"`
	Saves          int64           `json:"saves"`
	Clicks         int64           `json:"clicks"`
	EngagementRate float64         `json:"engagement_rate"`
	Limited        bool            `json:"limited"`
	Note           string          `json:"note,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

// limited builds the partial result returned when a platform exposes no analytics.
func limited(note string) *Metrics {
	return &Metrics{Limited: true, Note: note}
}

func (m *Metrics) computeEngagementRate() {
	engagements := m.Likes + m.Comments + m.Shares + m.Saves + m.Clicks
	base := m.Impressions
	if base == 0 {
		base = m.Reach
	}
	if base == 0 {
		m.EngagementRate = 0
		return
	}
	m.EngagementRate = float64(engagements) / float64(base) * 100
}

type Capabilities struct {
	Text          bool `json:"text"`
	Image         bool `json:"image"`
	Video         bool `json:"video"`
	Hashtags      bool `json:"hashtags"`
	Mentions      bool `json:"mentions"`
	Scheduling    bool `json:"scheduling"`
	Analytics     bool `json:"analytics"`
	MaxTextLength int  `json:"max_text_length"`
	MaxTitle      int  `json:"max_title_length,omitempty"`
	MaxHashtags   int  `json:"max_hashtags,omitempty"` // 0 means no cap
	MaxMedia      int  `json:"max_media"`
	MediaRequired bool `json:"media_required"`
}

type profile struct {
	caps   Capabilities
	limits models.RateLimits
}

var profiles = map[models.Platform]profile{
	models.PlatformTelegram: {
		caps: Capabilities{
			Text: true, Image: true, Video: true, Hashtags: true, Mentions: true, Scheduling: true,
			MaxTextLength: 4096, MaxMedia: 10,
		},
		limits: models.RateLimits{Minute: 30, Hour: 1000, Day: 10000},
	},
	models.PlatformFacebook: {
		caps: Capabilities{
			Text: true, Image: true, Video: true, Hashtags: true, Mentions: true, Scheduling: true, Analytics: true,
			MaxTextLength: 5000, MaxMedia: 10,
		},
		limits: models.RateLimits{Minute: 10, Hour: 200, Day: 1000},
	},
	models.PlatformInstagram: {
		caps: Capabilities{
			Image: true, Video: true, Hashtags: true, Mentions: true, Scheduling: true, Analytics: true,
			MaxTextLength: 2200, MaxHashtags: 30, MaxMedia: 10, MediaRequired: true,
		},
		limits: models.RateLimits{Minute: 5, Hour: 25, Day: 25},
	},
	models.PlatformTwitter: {
		caps: Capabilities{
			Text: true, Image: true, Video: true, Hashtags: true, Mentions: true, Scheduling: true, Analytics: true,
			MaxTextLength: 280, MaxMedia: 4,
		},
		limits: models.RateLimits{Minute: 5, Hour: 50, Day: 300},
	},
	models.PlatformLinkedIn: {
		caps: Capabilities{
			Text: true, Image: true, Video: true, Hashtags: true, Mentions: true, Scheduling: true, Analytics: true,
			MaxTextLength: 3000, MaxHashtags: 30, MaxMedia: 9,
		},
		limits: models.RateLimits{Minute: 5, Hour: 100, Day: 150},
	},
	models.PlatformYoutube: {
		caps: Capabilities{
			Video: true, Hashtags: true, Scheduling: true, Analytics: true,
			MaxTextLength: 5000, MaxTitle: 100, MaxMedia: 1, MediaRequired: true,
		},
		limits: models.RateLimits{Minute: 1, Hour: 10, Day: 50},
	},
	models.PlatformTiktok: {
		caps: Capabilities{
			Image: true, Video: true, Hashtags: true, Mentions: true, Scheduling: true, Analytics: true,
			MaxTextLength: 2200, MaxHashtags: 30, MaxMedia: 35, MediaRequired: true,
		},
		limits: models.RateLimits{Minute: 1, Hour: 5, Day: 20},
	},
}

// CapabilitiesOf returns the static capability set of a platform.
func CapabilitiesOf(p models.Platform) (Capabilities, bool) {
	pr, ok := profiles[p]
	return pr.caps, ok
}

// DefaultRateLimits returns the built-in call budget of a platform.
func DefaultRateLimits(p models.Platform) models.RateLimits {
	return profiles[p].limits
}

// Validate checks text against the platform's length and hashtag limits without any network call.
func Validate(p models.Platform, text string) error {
	pr, ok := profiles[p]
	if !ok {
		return apperr.Newf(apperr.Unsupported, "unsupported platform %q", p)
	}

	if n := utf8.RuneCountInString(text); n > pr.caps.MaxTextLength {
		return apperr.Newf(apperr.ContentTooLong,
			"content is %d characters, %s allows at most %d", n, p, pr.caps.MaxTextLength).
			WithPlatform(string(p))
	}

	if pr.caps.MaxHashtags > 0 {
		if n := CountHashtags(text); n > pr.caps.MaxHashtags {
			return apperr.Newf(apperr.TooManyHashtags,
				"content has %d hashtags, %s allows at most %d", n, p, pr.caps.MaxHashtags).
				WithPlatform(string(p))
		}
	}
	return nil
}

// CheckMedia enforces the media-required rule and the per-post media count.
func CheckMedia(p models.Platform, media []string) error {
	pr, ok := profiles[p]
	if !ok {
		return apperr.Newf(apperr.Unsupported, "unsupported platform %q", p)
	}
	if pr.caps.MediaRequired && len(media) == 0 {
		return apperr.Newf(apperr.MediaRequired, "%s posts require at least one media item", p).
			WithPlatform(string(p))
	}
	if len(media) > pr.caps.MaxMedia {
		return apperr.Newf(apperr.InvalidInput,
			"%d media items given, %s allows at most %d", len(media), p, pr.caps.MaxMedia).
			WithPlatform(string(p))
	}
	return nil
}

// Check runs every static publish check. The media rule comes first so a
// media-required platform reports missing media whatever the text.
func Check(p models.Platform, text string, media []string) error {
	if err := CheckMedia(p, media); err != nil {
		return err
	}
	return Validate(p, text)
}

// NewClient builds the client for p over the given credentials.
func NewClient(p models.Platform, creds *Credentials, deps Deps) (Client, error) {
	if creds == nil {
		creds = NewCredentials(nil, nil)
	}
	creds.setDefaults(deps.App[p])
	deps = deps.withDefaults()

	switch p {
	case models.PlatformTelegram:
		return newTelegram(creds, deps), nil
	case models.PlatformFacebook:
		return newFacebook(creds, deps), nil
	case models.PlatformInstagram:
		return newInstagram(creds, deps), nil
	case models.PlatformTwitter:
		return newTwitter(creds, deps), nil
	case models.PlatformLinkedIn:
		return newLinkedIn(creds, deps), nil
	case models.PlatformYoutube:
		return newYoutube(creds, deps), nil
	case models.PlatformTiktok:
		return newTiktok(creds, deps), nil
	default:
		return nil, apperr.Newf(apperr.Unsupported, "unsupported platform %q", p)
	}
}

// TestCredentials authenticates a throwaway client built from values. Nothing is persisted.
func TestCredentials(ctx context.Context, p models.Platform, values map[string]string, deps Deps) error {
	client, err := NewClient(p, NewCredentials(values, nil), deps)
	if err != nil {
		return err
	}
	if err := client.Authenticate(ctx); err != nil {
		return fmt.Errorf("credential test failed: %w", err)
	}
	return nil
}
