package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const (
	twitterHost      = "https://api.x.com"
	twitterChunkSize = 4 << 20
)

func twitterErrorParser(status int, body []byte) (string, bool) {
	var e transfer.TwitterErrorResponse
	if json.Unmarshal(body, &e) != nil {
		return plainErrorParser(status, body)
	}
	switch {
	case e.Detail != "":
		return e.Detail, status == http.StatusUnauthorized
	case len(e.Errors) > 0:
		// Code 89: invalid or expired token.
		return e.Errors[0].Message, e.Errors[0].Code == 89
	case e.Title != "":
		return e.Title, status == http.StatusUnauthorized
	}
	return plainErrorParser(status, body)
}

// twitterClient posts through the X API v2 with an OAuth 2.0 user token.
// Credentials: access_token, refresh_token, client_id, client_secret.
type twitterClient struct {
	base
}

func newTwitter(creds *Credentials, deps Deps) *twitterClient {
	return &twitterClient{base: newBase(models.PlatformTwitter, creds, deps, twitterErrorParser)}
}

func (c *twitterClient) call(ctx context.Context, api *apiClient, r request, out any) error {
	token, err := c.require("access_token")
	if err != nil {
		return err
	}
	r.bearer = token
	_, err = api.do(ctx, r, out)
	return c.observe(err)
}

func (c *twitterClient) Authenticate(ctx context.Context) error {
	var refresh func(context.Context) error
	if c.creds.Has("refresh_token") {
		refresh = c.RefreshToken
	}
	return c.authenticate(ctx, c.me, refresh)
}

func (c *twitterClient) me(ctx context.Context) error {
	var user transfer.TwitterUserResponse
	return c.call(ctx, c.api, request{url: c.endpoint(twitterHost, "/2/users/me"), endpoint: "GET users/me"}, &user)
}

func (c *twitterClient) RefreshToken(ctx context.Context) error {
	style := oauth2.AuthStyleInParams
	if c.creds.Has("client_secret") {
		style = oauth2.AuthStyleInHeader
	}
	return c.refreshOAuth2(ctx, c.endpoint(twitterHost, "/2/oauth2/token"), style)
}

func (c *twitterClient) IsAuthenticated(ctx context.Context) bool {
	return c.isAuthenticated(ctx, c.Authenticate)
}

func (c *twitterClient) Publish(ctx context.Context, text string, media []string) (string, error) {
	if err := c.gate(ctx, text, media, c.Authenticate); err != nil {
		return "", err
	}

	tweet := transfer.TwitterTweetRequest{Text: text}
	if len(media) > 0 {
		ids := make([]string, 0, len(media))
		for _, m := range media {
			id, err := c.uploadMedia(ctx, m)
			if err != nil {
				return "", err
			}
			ids = append(ids, id)
		}
		tweet.Media = &transfer.TwitterTweetMedia{MediaIDs: ids}
	}

	var res transfer.TwitterTweetResponse
	err := c.call(ctx, c.api, request{
		method:   http.MethodPost,
		url:      c.endpoint(twitterHost, "/2/tweets"),
		endpoint: "POST tweets",
		json:     tweet,
	}, &res)
	if err != nil {
		return "", err
	}
	if res.Data.ID == "" {
		return "", apperr.New(apperr.ProtocolError, "tweet created without an id").WithPlatform(string(c.platform))
	}
	return res.Data.ID, nil
}

// uploadMedia runs the chunked INIT, APPEND, FINALIZE upload and waits for processing.
func (c *twitterClient) uploadMedia(ctx context.Context, mediaURL string) (string, error) {
	data, header, err := c.upload.fetch(ctx, mediaURL)
	if err != nil {
		return "", err
	}
	mime := mimeOf(data, header)
	category := "tweet_image"
	switch {
	case mime == "image/gif":
		category = "tweet_gif"
	case strings.HasPrefix(mime, "video/"):
		category = "tweet_video"
	}

	uploadURL := c.endpoint(twitterHost, "/2/media/upload")

	var initRes transfer.TwitterMediaResponse
	err = c.call(ctx, c.api, request{
		method:   http.MethodPost,
		url:      uploadURL,
		endpoint: "POST media/upload INIT",
		form: url.Values{
			"command":        {"INIT"},
			"total_bytes":    {strconv.Itoa(len(data))},
			"media_type":     {mime},
			"media_category": {category},
		},
	}, &initRes)
	if err != nil {
		return "", err
	}
	mediaID := initRes.Data.ID
	if mediaID == "" {
		return "", apperr.New(apperr.ProtocolError, "media INIT returned no id").WithPlatform(string(c.platform))
	}

	for segment, offset := 0, 0; offset < len(data); segment, offset = segment+1, offset+twitterChunkSize {
		end := min(offset+twitterChunkSize, len(data))
		body, contentType, err := appendBody(mediaID, segment, data[offset:end])
		if err != nil {
			return "", apperr.Wrap(apperr.Internal, err, "encode media chunk")
		}
		err = c.call(ctx, c.upload, request{
			method:      http.MethodPost,
			url:         uploadURL,
			endpoint:    "POST media/upload APPEND",
			body:        body,
			contentType: contentType,
		}, nil)
		if err != nil {
			return "", err
		}
	}

	var fin transfer.TwitterMediaResponse
	err = c.call(ctx, c.api, request{
		method:   http.MethodPost,
		url:      uploadURL,
		endpoint: "POST media/upload FINALIZE",
		form:     url.Values{"command": {"FINALIZE"}, "media_id": {mediaID}},
	}, &fin)
	if err != nil {
		return "", err
	}

	info := fin.Data.ProcessingInfo
	if info == nil || info.State == "succeeded" {
		return mediaID, nil
	}

	err = c.deps.Poller.Poll(ctx, "twitter media "+mediaID, func(ctx context.Context) (bool, error) {
		var status transfer.TwitterMediaResponse
		err := c.call(ctx, c.api, request{
			url:      uploadURL,
			endpoint: "GET media/upload STATUS",
			query:    url.Values{"command": {"STATUS"}, "media_id": {mediaID}},
		}, &status)
		if err != nil {
			return false, err
		}
		pi := status.Data.ProcessingInfo
		if pi == nil {
			return true, nil
		}
		switch pi.State {
		case "succeeded":
			return true, nil
		case "failed":
			msg := "media processing failed"
			if pi.Error != nil && pi.Error.Message != "" {
				msg = pi.Error.Message
			}
			return false, apperr.New(apperr.ProviderRejected, msg).WithPlatform(string(c.platform))
		default:
			return false, nil
		}
	})
	if err != nil {
		return "", err
	}
	return mediaID, nil
}

func appendBody(mediaID string, segment int, chunk []byte) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	if err := w.WriteField("command", "APPEND"); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("media_id", mediaID); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("segment_index", strconv.Itoa(segment)); err != nil {
		return nil, "", err
	}
	part, err := w.CreateFormFile("media", "chunk")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(chunk); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func (c *twitterClient) GetAnalytics(ctx context.Context, postID string) (*Metrics, error) {
	if err := c.ensure(ctx, c.Authenticate); err != nil {
		return nil, err
	}
	var res transfer.TwitterTweetMetricsResponse
	err := c.call(ctx, c.api, request{
		url:      c.endpoint(twitterHost, "/2/tweets/"+url.PathEscape(postID)),
		endpoint: "GET tweets/:id",
		query:    url.Values{"tweet.fields": {"public_metrics"}},
	}, &res)
	if err != nil {
		return nil, err
	}
	pm := res.Data.PublicMetrics
	m := &Metrics{
		Impressions: pm.ImpressionCount,
		Likes:       pm.LikeCount,
		Comments:    pm.ReplyCount,
		Shares:      pm.RetweetCount + pm.QuoteCount,
		Saves:       pm.BookmarkCount,
	}
	m.computeEngagementRate()
	m.Raw, _ = json.Marshal(pm)
	return m, nil
}

func (c *twitterClient) DeletePost(ctx context.Context, postID string) (bool, error) {
	if err := c.ensure(ctx, c.Authenticate); err != nil {
		return false, err
	}
	var res transfer.TwitterDeleteResponse
	err := c.call(ctx, c.api, request{
		method:   http.MethodDelete,
		url:      c.endpoint(twitterHost, "/2/tweets/"+url.PathEscape(postID)),
		endpoint: "DELETE tweets/:id",
	}, &res)
	if err != nil {
		return false, err
	}
	return res.Data.Deleted, nil
}
