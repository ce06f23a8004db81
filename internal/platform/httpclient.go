package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/telemetry"
)

const (
	maxResponseBytes = 10 << 20
	maxMediaBytes    = 512 << 20
)

// errorParser extracts the provider message from an error body and reports
// whether the provider rejected the access token.
type errorParser func(status int, body []byte) (message string, authFailure bool)

type apiClient struct {
	platform models.Platform
	http     *http.Client
	sink     telemetry.Sink
	parse    errorParser

	mediaLimit int64
}

func newAPIClient(p models.Platform, hc *http.Client, sink telemetry.Sink, parse errorParser) *apiClient {
	if parse == nil {
		parse = plainErrorParser
	}
	return &apiClient{platform: p, http: hc, sink: telemetry.OrNop(sink), parse: parse, mediaLimit: maxMediaBytes}
}

type request struct {
	method   string
	url      string
	endpoint string // metrics label, never contains ids or tokens
	query    url.Values
	bearer   string
	headers  map[string]string
	limit    int64 // response size cap, maxResponseBytes when zero

	// At most one body source is used, in this order.
	json        any
	form        url.Values
	body        io.Reader
	contentType string
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// do performs r, decodes a successful JSON body into out and reports the call to the sink.
func (c *apiClient) do(ctx context.Context, r request, out any) (*response, error) {
	start := time.Now()
	resp, err := c.send(ctx, r, out)
	c.sink.TrackAPICall(ctx, string(c.platform), r.endpoint, time.Since(start), err == nil, err)
	return resp, err
}

// track times an operation that does not go through do, such as an SDK call.
func (c *apiClient) track(ctx context.Context, endpoint string, fn func() error) error {
	start := time.Now()
	err := fn()
	c.sink.TrackAPICall(ctx, string(c.platform), endpoint, time.Since(start), err == nil, err)
	return err
}

func (c *apiClient) send(ctx context.Context, r request, out any) (*response, error) {
	platform := string(c.platform)

	target := r.url
	if len(r.query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + r.query.Encode()
	}

	var body io.Reader
	contentType := r.contentType
	switch {
	case r.json != nil:
		b, err := json.Marshal(r.json)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, err, "encode request body").WithPlatform(platform)
		}
		body = bytes.NewReader(b)
		contentType = "application/json; charset=UTF-8"
	case r.form != nil:
		body = strings.NewReader(r.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case r.body != nil:
		body = r.body
	}

	method := r.method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "build request").WithPlatform(platform)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if r.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.bearer)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.TransportError, stripURL(err), r.endpoint+" request failed").WithPlatform(platform)
	}
	defer resp.Body.Close()

	limit := r.limit
	if limit <= 0 {
		limit = maxResponseBytes
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, apperr.Wrap(apperr.TransportError, stripURL(err), r.endpoint+" read response").WithPlatform(platform)
	}
	if int64(len(raw)) > limit {
		return nil, apperr.Newf(apperr.ProtocolError, "%s response exceeds %d bytes", r.endpoint, limit).WithPlatform(platform)
	}
	result := &response{status: resp.StatusCode, header: resp.Header, body: raw}

	if resp.StatusCode >= http.StatusBadRequest {
		return result, c.statusError(resp, raw, r.endpoint)
	}

	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return result, apperr.Wrap(apperr.ProtocolError, err, r.endpoint+" returned malformed JSON").WithPlatform(platform)
		}
	}
	return result, nil
}

func (c *apiClient) statusError(resp *http.Response, raw []byte, endpoint string) error {
	platform := string(c.platform)
	message, authFailure := c.parse(resp.StatusCode, raw)
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	switch {
	case authFailure || resp.StatusCode == http.StatusUnauthorized:
		return apperr.Newf(apperr.InvalidToken, "%s: %s", endpoint, message).WithPlatform(platform)
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperr.Newf(apperr.RateLimitExceeded, "%s: %s", endpoint, message).
			WithPlatform(platform).
			WithRetryAfter(retryAfter(resp.Header))
	default:
		return apperr.Newf(apperr.ProviderRejected, "%s: %s (status %d)", endpoint, message, resp.StatusCode).
			WithPlatform(platform)
	}
}

// stripURL drops the request URL from a transport error. Bot tokens travel in
// the path and access tokens in the query, so the URL must never reach a message.
func stripURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	return err
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func plainErrorParser(status int, body []byte) (string, bool) {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if payload.Message != "" {
			return payload.Message, false
		}
		if payload.Error != "" {
			return payload.Error, false
		}
	}
	return strings.TrimSpace(string(truncateBytes(body, 200))), false
}

func truncateBytes(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

// fetch downloads a media object through the upload client.
func (c *apiClient) fetch(ctx context.Context, mediaURL string) ([]byte, string, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, url: mediaURL, endpoint: "GET media", limit: c.mediaLimit}, nil)
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			switch ae.Kind {
			case apperr.InvalidToken:
				// The media host is not the provider; a 401 there is not a token problem.
				return nil, "", apperr.Newf(apperr.ProviderRejected, "media %s not accessible", mediaURL).WithPlatform(string(c.platform))
			case apperr.ProtocolError:
				// Nothing is decoded here, so the only protocol failure is an oversized body.
				return nil, "", apperr.Newf(apperr.InvalidInput, "media %s is larger than %d bytes", mediaURL, c.mediaLimit).WithPlatform(string(c.platform))
			}
		}
		return nil, "", err
	}
	if len(resp.body) == 0 {
		return nil, "", apperr.Newf(apperr.InvalidInput, "media %s is empty", mediaURL).WithPlatform(string(c.platform))
	}
	return resp.body, resp.header.Get("Content-Type"), nil
}
