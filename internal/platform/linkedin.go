package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/oauth2"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const (
	linkedinHost     = "https://api.linkedin.com"
	linkedinAuthHost = "https://www.linkedin.com"
	restliHeader     = "X-Restli-Protocol-Version"
)

func linkedinErrorParser(status int, body []byte) (string, bool) {
	var e transfer.LinkedInErrorResponse
	if json.Unmarshal(body, &e) != nil || e.Message == "" {
		return plainErrorParser(status, body)
	}
	return e.Message, status == http.StatusUnauthorized || e.ServiceErrorCode == 65600
}

// linkedinClient shares as a member through the UGC Posts API.
// Credentials: access_token, refresh_token, client_id, client_secret, optional author_urn.
type linkedinClient struct {
	base

	authorMu sync.Mutex
	author   string
}

func newLinkedIn(creds *Credentials, deps Deps) *linkedinClient {
	return &linkedinClient{base: newBase(models.PlatformLinkedIn, creds, deps, linkedinErrorParser)}
}

func (c *linkedinClient) call(ctx context.Context, api *apiClient, r request, out any) (*response, error) {
	token, err := c.require("access_token")
	if err != nil {
		return nil, err
	}
	r.bearer = token
	if r.headers == nil {
		r.headers = map[string]string{}
	}
	r.headers[restliHeader] = "2.0.0"
	resp, err := api.do(ctx, r, out)
	return resp, c.observe(err)
}

func (c *linkedinClient) Authenticate(ctx context.Context) error {
	var refresh func(context.Context) error
	if c.creds.Has("refresh_token") {
		refresh = c.RefreshToken
	}
	return c.authenticate(ctx, c.userinfo, refresh)
}

func (c *linkedinClient) userinfo(ctx context.Context) error {
	var info transfer.LinkedInUserInfo
	if _, err := c.call(ctx, c.api, request{url: c.endpoint(linkedinHost, "/v2/userinfo"), endpoint: "GET userinfo"}, &info); err != nil {
		return err
	}
	c.authorMu.Lock()
	defer c.authorMu.Unlock()
	switch {
	case c.creds.Has("author_urn"):
		c.author = c.creds.GetCredential("author_urn")
	case info.Sub != "":
		c.author = "urn:li:person:" + info.Sub
	default:
		return apperr.New(apperr.ProtocolError, "userinfo returned no member id").WithPlatform(string(c.platform))
	}
	return nil
}

func (c *linkedinClient) authorURN() string {
	c.authorMu.Lock()
	defer c.authorMu.Unlock()
	return c.author
}

func (c *linkedinClient) RefreshToken(ctx context.Context) error {
	return c.refreshOAuth2(ctx, c.endpoint(linkedinAuthHost, "/oauth/v2/accessToken"), oauth2.AuthStyleInParams)
}

func (c *linkedinClient) IsAuthenticated(ctx context.Context) bool {
	return c.isAuthenticated(ctx, c.Authenticate)
}

func (c *linkedinClient) Publish(ctx context.Context, text string, media []string) (string, error) {
	if err := c.gate(ctx, text, media, c.Authenticate); err != nil {
		return "", err
	}
	author := c.authorURN()
	if author == "" {
		// A cached authentication from before the author was known; resolve it now.
		if err := c.userinfo(ctx); err != nil {
			return "", err
		}
		author = c.authorURN()
	}

	share := transfer.LinkedInShareContent{ShareMediaCategory: "NONE"}
	share.ShareCommentary.Text = text

	for _, m := range media {
		kind := c.detectMedia(ctx, m)
		category := "IMAGE"
		if kind == MediaVideo {
			category = "VIDEO"
		}
		if share.ShareMediaCategory != "NONE" && share.ShareMediaCategory != category {
			return "", apperr.New(apperr.InvalidInput, "a LinkedIn post cannot mix images and videos").WithPlatform(string(c.platform))
		}
		share.ShareMediaCategory = category

		asset, err := c.uploadAsset(ctx, author, m, kind)
		if err != nil {
			return "", err
		}
		share.Media = append(share.Media, transfer.LinkedInShareMedia{Status: "READY", Media: asset})
	}

	post := transfer.LinkedInUGCPost{
		Author:          author,
		LifecycleState:  "PUBLISHED",
		SpecificContent: map[string]transfer.LinkedInShareContent{"com.linkedin.ugc.ShareContent": share},
		Visibility:      map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	}

	var res transfer.LinkedInUGCPostResponse
	resp, err := c.call(ctx, c.api, request{
		method:   http.MethodPost,
		url:      c.endpoint(linkedinHost, "/v2/ugcPosts"),
		endpoint: "POST ugcPosts",
		json:     post,
	}, &res)
	if err != nil {
		return "", err
	}
	if id := resp.header.Get("X-Restli-Id"); id != "" {
		return id, nil
	}
	if res.ID == "" {
		return "", apperr.New(apperr.ProtocolError, "ugcPosts returned no id").WithPlatform(string(c.platform))
	}
	return res.ID, nil
}

// uploadAsset registers an upload, PUTs the media bytes and returns the asset URN.
func (c *linkedinClient) uploadAsset(ctx context.Context, owner, mediaURL string, kind MediaType) (string, error) {
	recipe := "urn:li:digitalmediaRecipe:feedshare-image"
	if kind == MediaVideo {
		recipe = "urn:li:digitalmediaRecipe:feedshare-video"
	}

	var reg transfer.LinkedInRegisterUploadResponse
	_, err := c.call(ctx, c.api, request{
		method:   http.MethodPost,
		url:      c.endpoint(linkedinHost, "/v2/assets?action=registerUpload"),
		endpoint: "POST assets registerUpload",
		json: transfer.LinkedInRegisterUploadRequest{RegisterUploadRequest: transfer.LinkedInUploadSpec{
			Recipes: []string{recipe},
			Owner:   owner,
			ServiceRelationships: []transfer.LinkedInServiceRelationship{{
				RelationshipType: "OWNER",
				Identifier:       "urn:li:userGeneratedContent",
			}},
		}},
	}, &reg)
	if err != nil {
		return "", err
	}
	uploadURL := reg.UploadURL()
	if uploadURL == "" || reg.Value.Asset == "" {
		return "", apperr.New(apperr.ProtocolError, "registerUpload returned no upload url").WithPlatform(string(c.platform))
	}

	data, header, err := c.upload.fetch(ctx, mediaURL)
	if err != nil {
		return "", err
	}
	_, err = c.call(ctx, c.upload, request{
		method:      http.MethodPut,
		url:         uploadURL,
		endpoint:    "PUT asset binary",
		body:        bytes.NewReader(data),
		contentType: mimeOf(data, header),
	}, nil)
	if err != nil {
		return "", err
	}
	return reg.Value.Asset, nil
}

func (c *linkedinClient) GetAnalytics(ctx context.Context, postID string) (*Metrics, error) {
	if err := c.ensure(ctx, c.Authenticate); err != nil {
		return nil, err
	}
	var actions transfer.LinkedInSocialActions
	_, err := c.call(ctx, c.api, request{
		url:      c.endpoint(linkedinHost, "/v2/socialActions/"+url.PathEscape(postID)),
		endpoint: "GET socialActions",
	}, &actions)
	if err != nil {
		if !apperr.IsKind(err, apperr.ProviderRejected) {
			return nil, err
		}
		c.deps.Logger.Warn("linkedin social actions unavailable", "post_id", postID, "error", err)
		return limited("member post analytics require Marketing API access: " + err.Error()), nil
	}
	m := &Metrics{
		Likes:    actions.LikesSummary.TotalLikes,
		Comments: actions.CommentsSummary.AggregatedTotalComments,
		Limited:  true,
		Note:     "impressions are not available for member posts",
	}
	m.Raw, _ = json.Marshal(actions)
	return m, nil
}

func (c *linkedinClient) DeletePost(ctx context.Context, postID string) (bool, error) {
	if err := c.ensure(ctx, c.Authenticate); err != nil {
		return false, err
	}
	_, err := c.call(ctx, c.api, request{
		method:   http.MethodDelete,
		url:      c.endpoint(linkedinHost, "/v2/ugcPosts/"+url.PathEscape(postID)),
		endpoint: "DELETE ugcPosts",
	}, nil)
	if err != nil {
		return false, err
	}
	return true, nil
}
