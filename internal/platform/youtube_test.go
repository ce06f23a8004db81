package platform

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/youtube/v3"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
)

var clipBytes = []byte("pretend this is an mp4 file")

type youtubeServer struct {
	srv *httptest.Server

	mu          sync.Mutex
	auth        []string
	uploadType  string
	metadata    *youtube.Video
	uploaded    []byte
	statusCalls int
	readyAfter  int
	failure     string // uploadStatus reported instead of processed
	quota       bool   // videos.insert answers with quotaExceeded
	deleted     string
}

func newYoutubeServer(t *testing.T) *youtubeServer {
	t.Helper()
	s := &youtubeServer{readyAfter: 1}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /files/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.Write(clipBytes)
	})
	mux.HandleFunc("GET /youtube/v3/channels", func(w http.ResponseWriter, r *http.Request) {
		s.seen(r)
		assert.Equal(t, "true", r.URL.Query().Get("mine"))
		w.Write([]byte(`{"items":[{"id":"UC123"}]}`))
	})
	mux.HandleFunc("POST /upload/youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		s.seen(r)
		if s.quota {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":{"code":403,"message":"The request cannot be completed because you have exceeded your quota.",
				"errors":[{"reason":"quotaExceeded","domain":"youtube.quota","message":"quota"}]}}`))
			return
		}
		s.readMultipart(t, r)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"vid1"}`))
	})
	mux.HandleFunc("GET /youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		s.seen(r)
		w.Header().Set("Content-Type", "application/json")
		assert.Equal(t, "vid1", r.URL.Query().Get("id"))
		switch r.URL.Query().Get("part") {
		case "status":
			s.mu.Lock()
			s.statusCalls++
			n := s.statusCalls
			s.mu.Unlock()
			state := "uploaded"
			switch {
			case s.failure != "":
				state = s.failure
			case n >= s.readyAfter:
				state = "processed"
			}
			w.Write([]byte(`{"items":[{"id":"vid1","status":{"uploadStatus":"` + state + `","failureReason":"codec","rejectionReason":"duplicate"}}]}`))
		case "statistics":
			w.Write([]byte(`{"items":[{"id":"vid1","statistics":{"viewCount":"400","likeCount":"30","commentCount":"6","favoriteCount":"4"}}]}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("DELETE /youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		s.seen(r)
		s.mu.Lock()
		s.deleted = r.URL.Query().Get("id")
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func (s *youtubeServer) seen(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = append(s.auth, r.Header.Get("Authorization"))
}

// readMultipart splits a multipart/related upload into its metadata and media parts.
func (s *youtubeServer) readMultipart(t *testing.T, r *http.Request) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !assert.NoError(t, err) || !assert.Equal(t, "multipart/related", mediaType) {
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	meta, err := mr.NextPart()
	if !assert.NoError(t, err) {
		return
	}
	var video youtube.Video
	assert.NoError(t, json.NewDecoder(meta).Decode(&video))

	media, err := mr.NextPart()
	if !assert.NoError(t, err) {
		return
	}
	data, _ := io.ReadAll(media)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadType = r.URL.Query().Get("uploadType")
	s.metadata = &video
	s.uploaded = data
}

func youtubeCreds() map[string]string {
	return map[string]string{"access_token": "yt-token"}
}

func TestYoutubePublishUploadsAndWaitsForProcessing(t *testing.T) {
	s := newYoutubeServer(t)
	s.readyAfter = 3
	fp := &fastPoller{}
	sink := &recordingSink{}
	client := mustClient(models.PlatformYoutube, youtubeCreds(), testDeps(s.srv.URL, sink, fp.poller(10)))

	text := "Release day\nEverything new in this version #go #video"
	id, err := client.Publish(context.Background(), text, []string{s.srv.URL + "/files/release.mp4"})
	require.NoError(t, err)
	assert.Equal(t, "vid1", id)

	assert.Equal(t, "multipart", s.uploadType)
	assert.Equal(t, clipBytes, s.uploaded)
	require.NotNil(t, s.metadata)
	require.NotNil(t, s.metadata.Snippet)
	assert.Equal(t, "Release day", s.metadata.Snippet.Title)
	assert.Equal(t, text, s.metadata.Snippet.Description)
	assert.Equal(t, []string{"go", "video"}, s.metadata.Snippet.Tags)
	assert.Equal(t, youtubeCategoryPeopleBlogs, s.metadata.Snippet.CategoryId)
	require.NotNil(t, s.metadata.Status)
	assert.Equal(t, "public", s.metadata.Status.PrivacyStatus)

	assert.Equal(t, 3, s.statusCalls)
	assert.Equal(t, 2, fp.count())
	for _, a := range s.auth {
		assert.Equal(t, "Bearer yt-token", a)
	}
	assert.Equal(t, []string{
		"GET channels", "GET media", "POST videos.insert",
		"GET videos status", "GET videos status", "GET videos status",
	}, sink.endpoints())
}

func TestYoutubeRejectsImages(t *testing.T) {
	s := newYoutubeServer(t)
	client := mustClient(models.PlatformYoutube, youtubeCreds(), testDeps(s.srv.URL, nil, Poller{}))

	_, err := client.Publish(context.Background(), "a photo", []string{s.srv.URL + "/files/photo.jpg"})
	assert.True(t, apperr.IsKind(err, apperr.MediaRequired), "got %v", err)
	assert.Nil(t, s.metadata)
}

func TestYoutubeProcessingFailure(t *testing.T) {
	s := newYoutubeServer(t)
	s.failure = "failed"
	fp := &fastPoller{}
	client := mustClient(models.PlatformYoutube, youtubeCreds(), testDeps(s.srv.URL, nil, fp.poller(10)))

	_, err := client.Publish(context.Background(), "broken", []string{s.srv.URL + "/files/broken.mp4"})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.ProviderRejected), "got %v", err)
	assert.Contains(t, err.Error(), "codec")
	assert.Equal(t, 1, s.statusCalls)
}

func TestYoutubeQuotaIsRateLimited(t *testing.T) {
	s := newYoutubeServer(t)
	s.quota = true
	client := mustClient(models.PlatformYoutube, youtubeCreds(), testDeps(s.srv.URL, nil, Poller{}))

	_, err := client.Publish(context.Background(), "too many", []string{s.srv.URL + "/files/clip.mp4"})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.RateLimitExceeded), "got %v", err)
	assert.True(t, apperr.Retryable(err))
}

func TestYoutubeAnalyticsAndDelete(t *testing.T) {
	s := newYoutubeServer(t)
	client := mustClient(models.PlatformYoutube, youtubeCreds(), testDeps(s.srv.URL, nil, Poller{}))

	m, err := client.GetAnalytics(context.Background(), "vid1")
	require.NoError(t, err)
	assert.Equal(t, int64(400), m.Impressions)
	assert.Equal(t, int64(30), m.Likes)
	assert.Equal(t, int64(6), m.Comments)
	assert.Equal(t, int64(4), m.Saves)
	assert.InDelta(t, 10.0, m.EngagementRate, 0.001)

	deleted, err := client.DeletePost(context.Background(), "vid1")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, "vid1", s.deleted)
}
