package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const (
	tiktokHost       = "https://open.tiktokapis.com"
	tiktokPhotoTitle = 90
)

var tiktokAuthCodes = map[string]bool{
	"access_token_invalid":    true,
	"scope_not_authorized":    true,
	"token_not_authorized":    true,
	"invalid_token":           true,
	"access_token_expired":    true,
	"scope_permission_missed": true,
}

func tiktokErrorParser(status int, body []byte) (string, bool) {
	var e struct {
		Error transfer.TiktokError `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil || e.Error.Code == "" {
		return plainErrorParser(status, body)
	}
	msg := e.Error.Message
	if msg == "" {
		msg = e.Error.Code
	}
	return msg, tiktokAuthCodes[e.Error.Code]
}

// tiktokClient posts through the Content Posting API with PULL_FROM_URL sources.
// Credentials: access_token, refresh_token, client_key, client_secret.
type tiktokClient struct {
	base
}

func newTiktok(creds *Credentials, deps Deps) *tiktokClient {
	return &tiktokClient{base: newBase(models.PlatformTiktok, creds, deps, tiktokErrorParser)}
}

// call performs r and turns an error envelope inside a 200 response into an error.
func (c *tiktokClient) call(ctx context.Context, r request, out any, envelope func() transfer.TiktokError) error {
	token, err := c.require("access_token")
	if err != nil {
		return err
	}
	r.bearer = token
	if _, err := c.api.do(ctx, r, out); err != nil {
		return c.observe(err)
	}
	if envelope == nil {
		return nil
	}
	if e := envelope(); e.Code != "" && e.Code != "ok" {
		kind := apperr.ProviderRejected
		if tiktokAuthCodes[e.Code] {
			kind = apperr.InvalidToken
		}
		return c.observe(apperr.Newf(kind, "%s: %s", r.endpoint, e.Message).WithPlatform(string(c.platform)))
	}
	return nil
}

func (c *tiktokClient) Authenticate(ctx context.Context) error {
	var refresh func(context.Context) error
	if c.creds.Has("refresh_token") {
		refresh = c.RefreshToken
	}
	return c.authenticate(ctx, c.userInfo, refresh)
}

func (c *tiktokClient) userInfo(ctx context.Context) error {
	var res transfer.TikTokResponse
	return c.call(ctx, request{
		url:      c.endpoint(tiktokHost, "/v2/user/info/"),
		endpoint: "GET user/info",
		query:    url.Values{"fields": {"open_id,display_name"}},
	}, &res, func() transfer.TiktokError { return res.Error })
}

// RefreshToken uses TikTok's form-encoded refresh grant, which names the client "client_key".
func (c *tiktokClient) RefreshToken(ctx context.Context) error {
	refreshToken, err := c.require("refresh_token")
	if err != nil {
		return err
	}
	clientKey, err := c.require("client_key")
	if err != nil {
		return err
	}

	var res transfer.TiktokTokenResponse
	_, err = c.api.do(ctx, request{
		method:   http.MethodPost,
		url:      c.endpoint(tiktokHost, "/v2/oauth/token/"),
		endpoint: "POST oauth/token",
		form: url.Values{
			"client_key":    {clientKey},
			"client_secret": {c.creds.GetCredential("client_secret")},
			"grant_type":    {"refresh_token"},
			"refresh_token": {refreshToken},
		},
	}, &res)
	if err != nil {
		return err
	}
	if res.Error != "" {
		return apperr.Newf(apperr.InvalidToken, "refresh rejected: %s", res.ErrorDescription).WithPlatform(string(c.platform))
	}
	if res.AccessToken == "" {
		return apperr.New(apperr.ProtocolError, "refresh returned no access token").WithPlatform(string(c.platform))
	}
	return c.persistToken(ctx, res.AccessToken, res.RefreshToken, int64(res.ExpiresIn))
}

func (c *tiktokClient) IsAuthenticated(ctx context.Context) bool {
	return c.isAuthenticated(ctx, c.Authenticate)
}

func (c *tiktokClient) Publish(ctx context.Context, text string, media []string) (string, error) {
	if err := c.gate(ctx, text, media, c.Authenticate); err != nil {
		return "", err
	}

	privacy, err := c.privacyLevel(ctx)
	if err != nil {
		return "", err
	}

	var res transfer.TikTokUploadResponse
	if c.detectMedia(ctx, media[0]) == MediaVideo {
		if len(media) > 1 {
			return "", apperr.New(apperr.InvalidInput, "TikTok video posts take exactly one video").WithPlatform(string(c.platform))
		}
		err = c.call(ctx, request{
			method:   http.MethodPost,
			url:      c.endpoint(tiktokHost, "/v2/post/publish/video/init/"),
			endpoint: "POST publish/video/init",
			json: transfer.VideoUploadRequest{
				PostInfo:   transfer.VideoPostInfo{Title: text, PrivacyLevel: privacy, VideoCoverTimestampMs: 1000},
				SourceInfo: transfer.VideoSourceInfo{Source: "PULL_FROM_URL", VideoURL: media[0]},
			},
		}, &res, func() transfer.TiktokError { return res.Error })
	} else {
		err = c.call(ctx, request{
			method:   http.MethodPost,
			url:      c.endpoint(tiktokHost, "/v2/post/publish/content/init/"),
			endpoint: "POST publish/content/init",
			json: transfer.PhotoUploadRequest{
				PostInfo: transfer.PhotoPostInfo{
					Title:        Truncate(firstLine(text), tiktokPhotoTitle),
					Description:  text,
					PrivacyLevel: privacy,
					AutoAddMusic: true,
				},
				SourceInfo: transfer.PhotoSourceInfo{Source: "PULL_FROM_URL", PhotoImages: media},
				PostMode:   "DIRECT_POST",
				MediaType:  "PHOTO",
			},
		}, &res, func() transfer.TiktokError { return res.Error })
	}
	if err != nil {
		return "", err
	}
	if res.Data.PublishID == "" {
		return "", apperr.New(apperr.ProtocolError, "publish init returned no publish_id").WithPlatform(string(c.platform))
	}
	return c.waitPublished(ctx, res.Data.PublishID)
}

// privacyLevel queries creator info and picks public visibility when the creator allows it.
func (c *tiktokClient) privacyLevel(ctx context.Context) (string, error) {
	var info transfer.TiktokCreatorInfoResponse
	err := c.call(ctx, request{
		method:   http.MethodPost,
		url:      c.endpoint(tiktokHost, "/v2/post/publish/creator_info/query/"),
		endpoint: "POST creator_info/query",
		json:     struct{}{},
	}, &info, func() transfer.TiktokError { return info.Error })
	if err != nil {
		return "", err
	}
	opts := info.Data.PrivacyLevelOptions
	switch {
	case slices.Contains(opts, "PUBLIC_TO_EVERYONE"):
		return "PUBLIC_TO_EVERYONE", nil
	case len(opts) > 0:
		return opts[0], nil
	default:
		return "SELF_ONLY", nil
	}
}

func (c *tiktokClient) waitPublished(ctx context.Context, publishID string) (string, error) {
	postID := publishID
	err := c.deps.Poller.Poll(ctx, "tiktok publish "+publishID, func(ctx context.Context) (bool, error) {
		var st transfer.TiktokStatusResponse
		err := c.call(ctx, request{
			method:   http.MethodPost,
			url:      c.endpoint(tiktokHost, "/v2/post/publish/status/fetch/"),
			endpoint: "POST publish/status/fetch",
			json:     transfer.TiktokStatusRequest{PublishID: publishID},
		}, &st, func() transfer.TiktokError { return st.Error })
		if err != nil {
			return false, err
		}
		switch st.Data.Status {
		case "PUBLISH_COMPLETE", "SEND_TO_USER_INBOX":
			if ids := st.Data.PubliclyAvailablePostIDs; len(ids) > 0 {
				postID = strconv.FormatInt(ids[0], 10)
			}
			return true, nil
		case "FAILED":
			return false, apperr.Newf(apperr.ProviderRejected, "publish failed: %s", st.Data.FailReason).WithPlatform(string(c.platform))
		default:
			return false, nil
		}
	})
	if err != nil {
		return "", err
	}
	return postID, nil
}

func (c *tiktokClient) GetAnalytics(ctx context.Context, postID string) (*Metrics, error) {
	if err := c.ensure(ctx, c.Authenticate); err != nil {
		return nil, err
	}
	body := transfer.TiktokVideoQueryRequest{}
	body.Filters.VideoIDs = []string{postID}

	var res transfer.TiktokVideoQueryResponse
	err := c.call(ctx, request{
		method:   http.MethodPost,
		url:      c.endpoint(tiktokHost, "/v2/video/query/"),
		endpoint: "POST video/query",
		query:    url.Values{"fields": {"id,like_count,comment_count,share_count,view_count"}},
		json:     body,
	}, &res, func() transfer.TiktokError { return res.Error })
	if err != nil {
		if !apperr.IsKind(err, apperr.ProviderRejected) {
			return nil, err
		}
		return limited("video metrics require the video.list scope: " + err.Error()), nil
	}
	if len(res.Data.Videos) == 0 {
		return limited("video not yet visible to the query API"), nil
	}
	v := res.Data.Videos[0]
	m := &Metrics{
		Impressions: v.ViewCount,
		Likes:       v.LikeCount,
		Comments:    v.CommentCount,
		Shares:      v.ShareCount,
	}
	m.computeEngagementRate()
	m.Raw, _ = json.Marshal(v)
	return m, nil
}

func (c *tiktokClient) DeletePost(ctx context.Context, postID string) (bool, error) {
	return false, apperr.New(apperr.Unsupported, "the TikTok API does not allow deleting posts").WithPlatform(string(c.platform))
}
