package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const (
	instagramHost    = "https://graph.instagram.com"
	instagramVersion = "/v21.0"
)

// instagramClient publishes through the Instagram Graph API content publishing flow.
// Credentials: access_token, user_id, refresh_token (the long-lived token).
type instagramClient struct {
	base
}

func newInstagram(creds *Credentials, deps Deps) *instagramClient {
	return &instagramClient{base: newBase(models.PlatformInstagram, creds, deps, graphErrorParser)}
}

func (c *instagramClient) graph(ctx context.Context, method, path, endpoint string, params url.Values, out any) error {
	token, err := c.require("access_token")
	if err != nil {
		return err
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("access_token", token)

	r := request{method: method, url: c.endpoint(instagramHost, instagramVersion+path), endpoint: endpoint}
	if method == http.MethodGet {
		r.query = params
	} else {
		r.form = params
	}
	_, err = c.api.do(ctx, r, out)
	return c.observe(err)
}

func (c *instagramClient) Authenticate(ctx context.Context) error {
	var refresh func(context.Context) error
	if c.creds.Has("refresh_token") {
		refresh = c.RefreshToken
	}
	return c.authenticate(ctx, c.me, refresh)
}

func (c *instagramClient) me(ctx context.Context) error {
	if _, err := c.require("user_id"); err != nil {
		return err
	}
	var info transfer.InstagramUserInfo
	return c.graph(ctx, http.MethodGet, "/me", "GET me", url.Values{"fields": {"user_id,username"}}, &info)
}

// RefreshToken exchanges the long-lived token for a new one.
func (c *instagramClient) RefreshToken(ctx context.Context) error {
	refreshToken, err := c.require("refresh_token")
	if err != nil {
		return err
	}
	var res transfer.InstagramRefreshResponse
	_, err = c.api.do(ctx, request{
		url:      c.endpoint(instagramHost, "/refresh_access_token"),
		endpoint: "GET refresh_access_token",
		query:    url.Values{"grant_type": {"ig_refresh_token"}, "access_token": {refreshToken}},
	}, &res)
	if err != nil {
		return err
	}
	if res.AccessToken == "" {
		return apperr.New(apperr.ProtocolError, "refresh returned no access token").WithPlatform(string(c.platform))
	}
	return c.persistToken(ctx, res.AccessToken, res.AccessToken, res.ExpiresIn)
}

func (c *instagramClient) IsAuthenticated(ctx context.Context) bool {
	return c.isAuthenticated(ctx, c.Authenticate)
}

func (c *instagramClient) Publish(ctx context.Context, text string, media []string) (string, error) {
	if err := c.gate(ctx, text, media, c.Authenticate); err != nil {
		return "", err
	}
	userID := c.creds.GetCredential("user_id")

	var containerID string
	if len(media) == 1 {
		params := url.Values{"caption": {text}}
		if c.detectMedia(ctx, media[0]) == MediaVideo {
			params.Set("media_type", "REELS")
			params.Set("video_url", media[0])
		} else {
			params.Set("image_url", media[0])
		}
		id, err := c.createContainer(ctx, userID, params)
		if err != nil {
			return "", err
		}
		containerID = id
	} else {
		children := make([]string, 0, len(media))
		for _, m := range media {
			params := url.Values{"is_carousel_item": {"true"}}
			if c.detectMedia(ctx, m) == MediaVideo {
				params.Set("media_type", "VIDEO")
				params.Set("video_url", m)
			} else {
				params.Set("image_url", m)
			}
			id, err := c.createContainer(ctx, userID, params)
			if err != nil {
				return "", err
			}
			children = append(children, id)
		}
		id, err := c.createContainer(ctx, userID, url.Values{
			"media_type": {"CAROUSEL"},
			"children":   {strings.Join(children, ",")},
			"caption":    {text},
		})
		if err != nil {
			return "", err
		}
		containerID = id
	}

	var published transfer.GraphID
	err := c.graph(ctx, http.MethodPost, "/"+userID+"/media_publish", "POST media_publish",
		url.Values{"creation_id": {containerID}}, &published)
	if err != nil {
		return "", err
	}
	if published.ID == "" {
		return "", apperr.New(apperr.ProtocolError, "media_publish returned no media id").WithPlatform(string(c.platform))
	}
	return published.ID, nil
}

// createContainer creates a media container and waits until Instagram finishes processing it.
func (c *instagramClient) createContainer(ctx context.Context, userID string, params url.Values) (string, error) {
	var res transfer.GraphID
	if err := c.graph(ctx, http.MethodPost, "/"+userID+"/media", "POST media", params, &res); err != nil {
		return "", err
	}
	if res.ID == "" {
		return "", apperr.New(apperr.ProtocolError, "no container id returned").WithPlatform(string(c.platform))
	}

	err := c.deps.Poller.Poll(ctx, "instagram container "+res.ID, func(ctx context.Context) (bool, error) {
		var status transfer.InstagramContainerStatus
		if err := c.graph(ctx, http.MethodGet, "/"+res.ID, "GET container", url.Values{"fields": {"status_code,status"}}, &status); err != nil {
			return false, err
		}
		switch status.StatusCode {
		case "FINISHED", "PUBLISHED":
			return true, nil
		case "ERROR", "EXPIRED":
			return false, apperr.Newf(apperr.ProviderRejected, "container %s: %s %s", res.ID, status.StatusCode, status.Status).
				WithPlatform(string(c.platform))
		default:
			return false, nil
		}
	})
	if err != nil {
		return "", err
	}
	return res.ID, nil
}

func (c *instagramClient) GetAnalytics(ctx context.Context, postID string) (*Metrics, error) {
	if err := c.ensure(ctx, c.Authenticate); err != nil {
		return nil, err
	}

	var fields transfer.InstagramMediaFields
	if err := c.graph(ctx, http.MethodGet, "/"+postID, "GET media", url.Values{"fields": {"like_count,comments_count"}}, &fields); err != nil {
		return nil, err
	}
	m := &Metrics{Likes: fields.LikeCount, Comments: fields.CommentsCount}

	var insights transfer.GraphInsights
	err := c.graph(ctx, http.MethodGet, "/"+postID+"/insights", "GET insights",
		url.Values{"metric": {"reach,saved,shares,views"}}, &insights)
	if err != nil {
		if !apperr.IsKind(err, apperr.ProviderRejected) {
			return nil, err
		}
		m.Limited = true
		m.Note = "media insights unavailable: " + err.Error()
	} else {
		v := insights.Values()
		m.Reach = v["reach"]
		m.Saves = v["saved"]
		m.Shares = v["shares"]
		m.Impressions = v["views"]
	}

	m.computeEngagementRate()
	m.Raw, _ = json.Marshal(map[string]any{"fields": fields, "insights": insights})
	return m, nil
}

func (c *instagramClient) DeletePost(ctx context.Context, postID string) (bool, error) {
	return false, apperr.New(apperr.Unsupported, "the Instagram Graph API does not allow deleting published media").
		WithPlatform(string(c.platform))
}
