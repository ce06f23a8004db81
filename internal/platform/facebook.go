package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const facebookHost = "https://graph.facebook.com/v21.0"

// Graph API codes for expired or invalid tokens.
var graphAuthCodes = map[int]bool{102: true, 190: true, 463: true, 467: true}

func graphErrorParser(status int, body []byte) (string, bool) {
	var e transfer.GraphErrorResponse
	if json.Unmarshal(body, &e) != nil || e.Error.Message == "" {
		return plainErrorParser(status, body)
	}
	msg := e.Error.Message
	if e.Error.ErrorUserMsg != "" {
		msg = e.Error.ErrorUserMsg
	}
	return msg, graphAuthCodes[e.Error.Code]
}

// facebookClient publishes to a Page. Credentials: access_token (page token), page_id.
type facebookClient struct {
	base
}

func newFacebook(creds *Credentials, deps Deps) *facebookClient {
	return &facebookClient{base: newBase(models.PlatformFacebook, creds, deps, graphErrorParser)}
}

func (c *facebookClient) graph(ctx context.Context, method, path, endpoint string, params url.Values, out any) error {
	token, err := c.require("access_token")
	if err != nil {
		return err
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("access_token", token)

	r := request{method: method, url: c.endpoint(facebookHost, path), endpoint: endpoint}
	if method == http.MethodGet || method == http.MethodDelete {
		r.query = params
	} else {
		r.form = params
	}
	_, err = c.api.do(ctx, r, out)
	return c.observe(err)
}

func (c *facebookClient) Authenticate(ctx context.Context) error {
	return c.authenticate(ctx, c.checkPage, nil)
}

func (c *facebookClient) checkPage(ctx context.Context) error {
	pageID, err := c.require("page_id")
	if err != nil {
		return err
	}
	var page transfer.FacebookPage
	if err := c.graph(ctx, http.MethodGet, "/me", "GET me", url.Values{"fields": {"id,name"}}, &page); err != nil {
		return err
	}
	if page.ID != "" && page.ID != pageID {
		return apperr.Newf(apperr.InvalidToken, "token belongs to %s, not page %s", page.ID, pageID).WithPlatform(string(c.platform))
	}
	return nil
}

func (c *facebookClient) IsAuthenticated(ctx context.Context) bool {
	return c.isAuthenticated(ctx, c.Authenticate)
}

func (c *facebookClient) Publish(ctx context.Context, text string, media []string) (string, error) {
	if err := c.gate(ctx, text, media, c.Authenticate); err != nil {
		return "", err
	}
	pageID := c.creds.GetCredential("page_id")

	if len(media) == 0 {
		var res transfer.GraphID
		if err := c.graph(ctx, http.MethodPost, "/"+pageID+"/feed", "POST feed", url.Values{"message": {text}}, &res); err != nil {
			return "", err
		}
		return res.ID, nil
	}

	if len(media) == 1 {
		var res transfer.GraphID
		if c.detectMedia(ctx, media[0]) == MediaVideo {
			params := url.Values{"file_url": {media[0]}, "description": {text}}
			if err := c.graph(ctx, http.MethodPost, "/"+pageID+"/videos", "POST videos", params, &res); err != nil {
				return "", err
			}
			return res.ID, nil
		}
		params := url.Values{"url": {media[0]}, "caption": {text}}
		if err := c.graph(ctx, http.MethodPost, "/"+pageID+"/photos", "POST photos", params, &res); err != nil {
			return "", err
		}
		if res.PostID != "" {
			return res.PostID, nil
		}
		return res.ID, nil
	}

	// Several images: upload unpublished photos, then attach them to one feed post.
	attached := make([]transfer.FacebookAttachedMedia, 0, len(media))
	for _, m := range media {
		if c.detectMedia(ctx, m) == MediaVideo {
			return "", apperr.New(apperr.InvalidInput, "multi-media posts accept images only").WithPlatform(string(c.platform))
		}
		var photo transfer.GraphID
		params := url.Values{"url": {m}, "published": {"false"}}
		if err := c.graph(ctx, http.MethodPost, "/"+pageID+"/photos", "POST photos", params, &photo); err != nil {
			return "", err
		}
		attached = append(attached, transfer.FacebookAttachedMedia{MediaFbid: photo.ID})
	}
	encoded, err := json.Marshal(attached)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, err, "encode attached media")
	}
	var res transfer.GraphID
	params := url.Values{"message": {text}, "attached_media": {string(encoded)}}
	if err := c.graph(ctx, http.MethodPost, "/"+pageID+"/feed", "POST feed", params, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

func (c *facebookClient) GetAnalytics(ctx context.Context, postID string) (*Metrics, error) {
	if err := c.ensure(ctx, c.Authenticate); err != nil {
		return nil, err
	}

	var eng transfer.FacebookEngagement
	fields := url.Values{"fields": {"reactions.summary(total_count),comments.summary(total_count),shares"}}
	if err := c.graph(ctx, http.MethodGet, "/"+postID, "GET post", fields, &eng); err != nil {
		return nil, err
	}
	m := &Metrics{
		Likes:    eng.Reactions.Summary.TotalCount,
		Comments: eng.Comments.Summary.TotalCount,
		Shares:   eng.Shares.Count,
	}

	var insights transfer.GraphInsights
	metrics := url.Values{"metric": {"post_impressions,post_impressions_unique,post_clicks"}}
	if err := c.graph(ctx, http.MethodGet, "/"+postID+"/insights", "GET insights", metrics, &insights); err != nil {
		if !apperr.IsKind(err, apperr.ProviderRejected) {
			return nil, err
		}
		m.Limited = true
		m.Note = "page insights unavailable: " + err.Error()
	} else {
		v := insights.Values()
		m.Impressions = v["post_impressions"]
		m.Reach = v["post_impressions_unique"]
		m.Clicks = v["post_clicks"]
	}

	m.computeEngagementRate()
	m.Raw, _ = json.Marshal(map[string]any{"engagement": eng, "insights": insights})
	return m, nil
}

func (c *facebookClient) DeletePost(ctx context.Context, postID string) (bool, error) {
	if err := c.ensure(ctx, c.Authenticate); err != nil {
		return false, err
	}
	var res transfer.GraphSuccess
	if err := c.graph(ctx, http.MethodDelete, "/"+postID, "DELETE post", nil, &res); err != nil {
		return false, err
	}
	return res.Success, nil
}
