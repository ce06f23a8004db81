package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractHashtagsAndMentions(t *testing.T) {
	text := "Launch day! #Go #golang #go @alice and @bob. mail me@example.com, see example.com/#anchor"

	assert.Equal(t, []string{"Go", "golang"}, ExtractHashtags(text))
	assert.Equal(t, []string{"alice", "bob"}, ExtractMentions(text))
	assert.Empty(t, ExtractHashtags("no tags here"))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{"fits", "hello", 5, "hello"},
		{"cut", "hello world", 6, "hello…"},
		{"trims trailing space", "hello world", 7, "hello…"},
		{"runes", "héllo wörld", 4, "hél…"},
		{"one", "hello", 1, "…"},
		{"zero", "hello", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.text, tt.limit)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMediaTypeFromURL(t *testing.T) {
	assert.Equal(t, MediaImage, MediaTypeFromURL("https://cdn.example.com/a/photo.JPG?w=100"))
	assert.Equal(t, MediaImage, MediaTypeFromURL("https://cdn.example.com/photo.jpeg"))
	assert.Equal(t, MediaVideo, MediaTypeFromURL("https://cdn.example.com/clip.mp4"))
	assert.Equal(t, MediaVideo, MediaTypeFromURL("https://cdn.example.com/clip.mov"))
	assert.Equal(t, MediaUnknown, MediaTypeFromURL("https://cdn.example.com/media/123"))
}

func TestDetectMediaTypeFallsBackToHead(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.Header().Set("Content-Type", "video/mp4")
	}))
	defer srv.Close()

	assert.Equal(t, MediaVideo, DetectMediaType(context.Background(), srv.Client(), srv.URL+"/media/123"))
	assert.Equal(t, http.MethodHead, method)
}

func TestMediaTypeFromBytes(t *testing.T) {
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	assert.Equal(t, MediaImage, MediaTypeFromBytes(png))
	assert.Equal(t, "image/png", mimeOf(png, "application/octet-stream"))
	assert.Equal(t, "text/plain", mimeOf([]byte("hello"), "text/plain; charset=utf-8"))
}

func TestCountHashtags(t *testing.T) {
	assert.Equal(t, 3, CountHashtags("#go #go #Go"))
	assert.Equal(t, 2, CountHashtags("#a,#b and mail@example.com"))
	assert.Equal(t, 0, CountHashtags("no tags & C# here"))
}
