package platform

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/h2non/filetype"
)

type MediaType string

const (
	MediaUnknown MediaType = ""
	MediaImage   MediaType = "image"
	MediaVideo   MediaType = "video"
)

var extAliases = map[string]string{
	"jpeg": "jpg",
	"tif":  "tiff",
}

// MediaTypeFromURL classifies a media URL by its path extension.
func MediaTypeFromURL(rawURL string) MediaType {
	u, err := url.Parse(rawURL)
	if err != nil {
		return MediaUnknown
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	if alias, ok := extAliases[ext]; ok {
		ext = alias
	}
	if ext == "" {
		return MediaUnknown
	}
	return fromMIME(filetype.GetType(ext).MIME.Type)
}

// MediaTypeFromBytes sniffs the media kind from the file header.
func MediaTypeFromBytes(buf []byte) MediaType {
	switch {
	case filetype.IsImage(buf):
		return MediaImage
	case filetype.IsVideo(buf):
		return MediaVideo
	default:
		return MediaUnknown
	}
}

// DetectMediaType classifies by extension and falls back to the Content-Type of a HEAD request.
func DetectMediaType(ctx context.Context, hc *http.Client, rawURL string) MediaType {
	if kind := MediaTypeFromURL(rawURL); kind != MediaUnknown {
		return kind
	}
	kind, _ := headMediaType(ctx, hc, rawURL)
	return kind
}

func headMediaType(ctx context.Context, hc *http.Client, rawURL string) (MediaType, error) {
	if hc == nil {
		hc = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return MediaUnknown, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return MediaUnknown, err
	}
	resp.Body.Close()

	mime := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(mime, '/'); i > 0 {
		return fromMIME(mime[:i]), nil
	}
	return MediaUnknown, nil
}

func fromMIME(top string) MediaType {
	switch strings.ToLower(top) {
	case "image":
		return MediaImage
	case "video":
		return MediaVideo
	default:
		return MediaUnknown
	}
}

// mimeOf returns the MIME value for a detected payload, falling back to the given header.
func mimeOf(buf []byte, header string) string {
	if t, err := filetype.Match(buf); err == nil && t != filetype.Unknown {
		return t.MIME.Value
	}
	if i := strings.IndexByte(header, ';'); i > 0 {
		header = header[:i]
	}
	return strings.TrimSpace(header)
}

var (
	hashtagPattern = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_&/])#([\p{L}\p{N}_]+)`)
	mentionPattern = regexp.MustCompile(`(?:^|[^\p{L}\p{N}_.])@([\p{L}\p{N}_.]+)`)
)

// ExtractHashtags returns the distinct hashtags in text, without the leading '#', in order of appearance.
func ExtractHashtags(text string) []string {
	return distinctMatches(hashtagPattern, text)
}

// ExtractMentions returns the distinct @mentions in text, without the leading '@'.
func ExtractMentions(text string) []string {
	return distinctMatches(mentionPattern, text)
}

// CountHashtags counts every hashtag occurrence in text, repeats included.
// Platform hashtag caps apply to this count.
func CountHashtags(text string) int {
	n := 0
	for _, m := range hashtagPattern.FindAllStringSubmatch(text, -1) {
		if strings.TrimRight(m[1], ".") != "" {
			n++
		}
	}
	return n
}

func distinctMatches(re *regexp.Regexp, text string) []string {
	matches := re.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		tag := strings.TrimRight(m[1], ".")
		key := strings.ToLower(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
	}
	return out
}

const ellipsis = "…"

// Truncate shortens text to at most limit runes, ending with an ellipsis when cut.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	if limit == 1 {
		return ellipsis
	}
	cut := strings.TrimRight(string(runes[:limit-1]), " \t\n")
	return cut + ellipsis
}

// firstLine returns the first non-empty line of text.
func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
