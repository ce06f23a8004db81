package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
)

const youtubeCategoryPeopleBlogs = "22"

// youtubeClient uploads videos with the YouTube Data API v3.
// Credentials: access_token, refresh_token, client_id, client_secret.
type youtubeClient struct {
	base
}

func newYoutube(creds *Credentials, deps Deps) *youtubeClient {
	return &youtubeClient{base: newBase(models.PlatformYoutube, creds, deps, nil)}
}

// service builds an API client over the current access token.
func (c *youtubeClient) service(ctx context.Context, hc *http.Client) (*youtube.Service, error) {
	token, err := c.require("access_token")
	if err != nil {
		return nil, err
	}
	octx := context.WithValue(ctx, oauth2.HTTPClient, hc)
	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(octx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))),
	}
	if c.deps.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(c.deps.BaseURL+"/"))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "create youtube service").WithPlatform(string(c.platform))
	}
	return svc, nil
}

// googleError maps a googleapi failure onto an error kind.
func (c *youtubeClient) googleError(err error, endpoint string) error {
	if err == nil {
		return nil
	}
	platform := string(c.platform)
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return c.observe(apperr.Wrap(apperr.TransportError, err, endpoint+" request failed").WithPlatform(platform))
	}

	quota := false
	for _, item := range gerr.Errors {
		if item.Reason == "quotaExceeded" || item.Reason == "uploadLimitExceeded" || item.Reason == "rateLimitExceeded" {
			quota = true
		}
	}
	switch {
	case gerr.Code == http.StatusUnauthorized:
		return c.observe(apperr.Newf(apperr.InvalidToken, "%s: %s", endpoint, gerr.Message).WithPlatform(platform))
	case gerr.Code == http.StatusTooManyRequests || quota:
		return apperr.Newf(apperr.RateLimitExceeded, "%s: %s", endpoint, gerr.Message).WithPlatform(platform)
	default:
		return apperr.Newf(apperr.ProviderRejected, "%s: %s (status %d)", endpoint, gerr.Message, gerr.Code).WithPlatform(platform)
	}
}

func (c *youtubeClient) Authenticate(ctx context.Context) error {
	var refresh func(context.Context) error
	if c.creds.Has("refresh_token") {
		refresh = c.RefreshToken
	}
	return c.authenticate(ctx, c.channel, refresh)
}

func (c *youtubeClient) channel(ctx context.Context) error {
	svc, err := c.service(ctx, c.deps.HTTPClient)
	if err != nil {
		return err
	}
	var res *youtube.ChannelListResponse
	err = c.api.track(ctx, "GET channels", func() error {
		var cerr error
		res, cerr = svc.Channels.List([]string{"id"}).Mine(true).Context(ctx).Do()
		return c.googleError(cerr, "channels.list")
	})
	if err != nil {
		return err
	}
	if len(res.Items) == 0 {
		return apperr.New(apperr.AccountNotConnected, "the account has no YouTube channel").WithPlatform(string(c.platform))
	}
	return nil
}

func (c *youtubeClient) RefreshToken(ctx context.Context) error {
	tokenURL := google.Endpoint.TokenURL
	if c.deps.BaseURL != "" {
		tokenURL = c.deps.BaseURL + "/token"
	}
	return c.refreshOAuth2(ctx, tokenURL, oauth2.AuthStyleInParams)
}

func (c *youtubeClient) IsAuthenticated(ctx context.Context) bool {
	return c.isAuthenticated(ctx, c.Authenticate)
}

func (c *youtubeClient) Publish(ctx context.Context, text string, media []string) (string, error) {
	if err := c.gate(ctx, text, media, c.Authenticate); err != nil {
		return "", err
	}
	if kind := c.detectMedia(ctx, media[0]); kind == MediaImage {
		return "", apperr.New(apperr.MediaRequired, "YouTube uploads require a video").WithPlatform(string(c.platform))
	}

	data, _, err := c.upload.fetch(ctx, media[0])
	if err != nil {
		return "", err
	}

	svc, err := c.service(ctx, c.deps.UploadClient)
	if err != nil {
		return "", err
	}

	caps := c.GetCapabilities()
	title := Truncate(firstLine(text), caps.MaxTitle)
	if title == "" {
		title = "Untitled"
	}
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       title,
			Description: text,
			Tags:        ExtractHashtags(text),
			CategoryId:  youtubeCategoryPeopleBlogs,
		},
		Status: &youtube.VideoStatus{PrivacyStatus: "public"},
	}

	var uploaded *youtube.Video
	err = c.upload.track(ctx, "POST videos.insert", func() error {
		var ierr error
		uploaded, ierr = svc.Videos.Insert([]string{"snippet", "status"}, video).
			Media(bytes.NewReader(data)).
			Context(ctx).
			Do()
		return c.googleError(ierr, "videos.insert")
	})
	if err != nil {
		return "", err
	}
	if uploaded.Id == "" {
		return "", apperr.New(apperr.ProtocolError, "videos.insert returned no id").WithPlatform(string(c.platform))
	}

	if err := c.waitProcessed(ctx, svc, uploaded.Id); err != nil {
		return "", err
	}
	return uploaded.Id, nil
}

func (c *youtubeClient) waitProcessed(ctx context.Context, svc *youtube.Service, videoID string) error {
	return c.deps.Poller.Poll(ctx, "youtube video "+videoID, func(ctx context.Context) (bool, error) {
		var res *youtube.VideoListResponse
		err := c.api.track(ctx, "GET videos status", func() error {
			var lerr error
			res, lerr = svc.Videos.List([]string{"status"}).Id(videoID).Context(ctx).Do()
			return c.googleError(lerr, "videos.list")
		})
		if err != nil {
			return false, err
		}
		if len(res.Items) == 0 || res.Items[0].Status == nil {
			return false, nil
		}
		st := res.Items[0].Status
		switch st.UploadStatus {
		case "processed":
			return true, nil
		case "failed":
			return false, apperr.Newf(apperr.ProviderRejected, "video processing failed: %s", st.FailureReason).WithPlatform(string(c.platform))
		case "rejected", "deleted":
			return false, apperr.Newf(apperr.ProviderRejected, "video %s: %s", st.UploadStatus, st.RejectionReason).WithPlatform(string(c.platform))
		default:
			return false, nil
		}
	})
}

func (c *youtubeClient) GetAnalytics(ctx context.Context, postID string) (*Metrics, error) {
	if err := c.ensure(ctx, c.Authenticate); err != nil {
		return nil, err
	}
	svc, err := c.service(ctx, c.deps.HTTPClient)
	if err != nil {
		return nil, err
	}
	var res *youtube.VideoListResponse
	err = c.api.track(ctx, "GET videos statistics", func() error {
		var lerr error
		res, lerr = svc.Videos.List([]string{"statistics"}).Id(postID).Context(ctx).Do()
		return c.googleError(lerr, "videos.list")
	})
	if err != nil {
		return nil, err
	}
	if len(res.Items) == 0 || res.Items[0].Statistics == nil {
		return nil, apperr.Newf(apperr.NotFound, "video %s not found", postID).WithPlatform(string(c.platform))
	}
	st := res.Items[0].Statistics
	m := &Metrics{
		Impressions: int64(st.ViewCount),
		Likes:       int64(st.LikeCount),
		Comments:    int64(st.CommentCount),
		Saves:       int64(st.FavoriteCount),
	}
	m.computeEngagementRate()
	m.Raw, _ = json.Marshal(st)
	return m, nil
}

func (c *youtubeClient) DeletePost(ctx context.Context, postID string) (bool, error) {
	if err := c.ensure(ctx, c.Authenticate); err != nil {
		return false, err
	}
	svc, err := c.service(ctx, c.deps.HTTPClient)
	if err != nil {
		return false, err
	}
	err = c.api.track(ctx, "DELETE videos", func() error {
		return c.googleError(svc.Videos.Delete(postID).Context(ctx).Do(), "videos.delete")
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
