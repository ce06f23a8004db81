package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type linkedinServer struct {
	srv *httptest.Server

	mu        sync.Mutex
	restli    []string
	recipes   []string
	owners    []string
	uploads   map[string][]byte
	upTypes   map[string]string
	post      *transfer.LinkedInUGCPost
	noHeader  bool // answer ugcPosts with the id in the body only
	actionsOK bool
}

func newLinkedInServer(t *testing.T) *linkedinServer {
	t.Helper()
	s := &linkedinServer{uploads: map[string][]byte{}, upTypes: map[string]string{}, actionsOK: true}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /files/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.Write(append([]byte(nil), pngHeader...))
	})
	mux.HandleFunc("GET /v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		s.seen(r)
		w.Write([]byte(`{"sub":"abc123","name":"Ada"}`))
	})
	mux.HandleFunc("POST /v2/assets", func(w http.ResponseWriter, r *http.Request) {
		s.seen(r)
		assert.Equal(t, "registerUpload", r.URL.Query().Get("action"))
		var req transfer.LinkedInRegisterUploadRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		s.mu.Lock()
		s.recipes = append(s.recipes, req.RegisterUploadRequest.Recipes...)
		s.owners = append(s.owners, req.RegisterUploadRequest.Owner)
		n := len(s.recipes)
		s.mu.Unlock()
		asset := fmt.Sprintf("urn:li:digitalmediaAsset:A%d", n)
		w.Write([]byte(`{"value":{"asset":"` + asset + `","uploadMechanism":{
			"com.linkedin.digitalmedia.uploading.MediaUploadHttpRequest":{"uploadUrl":"` +
			s.srv.URL + `/upload/` + asset + `"}}}}`))
	})
	mux.HandleFunc("PUT /upload/{asset}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.uploads[r.PathValue("asset")] = body
		s.upTypes[r.PathValue("asset")] = r.Header.Get("Content-Type")
		s.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("POST /v2/ugcPosts", func(w http.ResponseWriter, r *http.Request) {
		s.seen(r)
		var post transfer.LinkedInUGCPost
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&post))
		s.mu.Lock()
		s.post = &post
		s.mu.Unlock()
		if s.noHeader {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"urn:li:share:body"}`))
			return
		}
		w.Header().Set("X-Restli-Id", "urn:li:share:777")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /v2/socialActions/{urn}", func(w http.ResponseWriter, r *http.Request) {
		if !s.actionsOK {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"message":"Not enough permissions to access: socialActions","status":403}`))
			return
		}
		w.Write([]byte(`{"likesSummary":{"totalLikes":12},"commentsSummary":{"aggregatedTotalComments":3}}`))
	})
	mux.HandleFunc("DELETE /v2/ugcPosts/{urn}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *linkedinServer) seen(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restli = append(s.restli, r.Header.Get(restliHeader))
}

func TestLinkedInPublishTextUsesMemberURN(t *testing.T) {
	s := newLinkedInServer(t)
	sink := &recordingSink{}
	client := mustClient(models.PlatformLinkedIn, map[string]string{"access_token": "li"}, testDeps(s.srv.URL, sink, Poller{}))

	id, err := client.Publish(context.Background(), "career news", nil)
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:777", id)

	require.NotNil(t, s.post)
	assert.Equal(t, "urn:li:person:abc123", s.post.Author)
	assert.Equal(t, "PUBLISHED", s.post.LifecycleState)
	share := s.post.SpecificContent["com.linkedin.ugc.ShareContent"]
	assert.Equal(t, "career news", share.ShareCommentary.Text)
	assert.Equal(t, "NONE", share.ShareMediaCategory)
	assert.Empty(t, share.Media)
	assert.Equal(t, "PUBLIC", s.post.Visibility["com.linkedin.ugc.MemberNetworkVisibility"])
	for _, v := range s.restli {
		assert.Equal(t, "2.0.0", v)
	}
	assert.Equal(t, []string{"GET userinfo", "POST ugcPosts"}, sink.endpoints())
}

func TestLinkedInPublishImagesUploadsAssets(t *testing.T) {
	s := newLinkedInServer(t)
	sink := &recordingSink{}
	creds := map[string]string{"access_token": "li", "author_urn": "urn:li:organization:9"}
	client := mustClient(models.PlatformLinkedIn, creds, testDeps(s.srv.URL, sink, Poller{}))

	_, err := client.Publish(context.Background(), "two pics", []string{s.srv.URL + "/files/a.png", s.srv.URL + "/files/b.png"})
	require.NoError(t, err)

	assert.Equal(t, []string{"urn:li:digitalmediaRecipe:feedshare-image", "urn:li:digitalmediaRecipe:feedshare-image"}, s.recipes)
	assert.Equal(t, []string{"urn:li:organization:9", "urn:li:organization:9"}, s.owners)
	require.Len(t, s.uploads, 2)
	assert.Equal(t, pngHeader, s.uploads["urn:li:digitalmediaAsset:A1"])
	assert.Equal(t, "image/png", s.upTypes["urn:li:digitalmediaAsset:A1"])

	require.NotNil(t, s.post)
	assert.Equal(t, "urn:li:organization:9", s.post.Author)
	share := s.post.SpecificContent["com.linkedin.ugc.ShareContent"]
	assert.Equal(t, "IMAGE", share.ShareMediaCategory)
	assert.Equal(t, []transfer.LinkedInShareMedia{
		{Status: "READY", Media: "urn:li:digitalmediaAsset:A1"},
		{Status: "READY", Media: "urn:li:digitalmediaAsset:A2"},
	}, share.Media)
	assert.Equal(t, []string{
		"GET userinfo",
		"POST assets registerUpload", "GET media", "PUT asset binary",
		"POST assets registerUpload", "GET media", "PUT asset binary",
		"POST ugcPosts",
	}, sink.endpoints())
}

func TestLinkedInRejectsMixedMedia(t *testing.T) {
	s := newLinkedInServer(t)
	client := mustClient(models.PlatformLinkedIn, map[string]string{"access_token": "li"}, testDeps(s.srv.URL, nil, Poller{}))

	_, err := client.Publish(context.Background(), "mixed", []string{s.srv.URL + "/files/a.png", s.srv.URL + "/files/b.mp4"})
	assert.True(t, apperr.IsKind(err, apperr.InvalidInput), "got %v", err)
	assert.Nil(t, s.post)
}

func TestLinkedInPostIDFromBody(t *testing.T) {
	s := newLinkedInServer(t)
	s.noHeader = true
	client := mustClient(models.PlatformLinkedIn, map[string]string{"access_token": "li"}, testDeps(s.srv.URL, nil, Poller{}))

	id, err := client.Publish(context.Background(), "no header", nil)
	require.NoError(t, err)
	assert.Equal(t, "urn:li:share:body", id)
}

func TestLinkedInAnalytics(t *testing.T) {
	s := newLinkedInServer(t)
	client := mustClient(models.PlatformLinkedIn, map[string]string{"access_token": "li"}, testDeps(s.srv.URL, nil, Poller{}))

	m, err := client.GetAnalytics(context.Background(), "urn:li:share:777")
	require.NoError(t, err)
	assert.Equal(t, int64(12), m.Likes)
	assert.Equal(t, int64(3), m.Comments)
	assert.True(t, m.Limited, "member posts never report impressions")

	s.actionsOK = false
	m, err = client.GetAnalytics(context.Background(), "urn:li:share:777")
	require.NoError(t, err)
	assert.True(t, m.Limited)
	assert.Zero(t, m.Likes)
	assert.Contains(t, m.Note, "Marketing API")

	deleted, err := client.DeletePost(context.Background(), "urn:li:share:777")
	require.NoError(t, err)
	assert.True(t, deleted)
}
