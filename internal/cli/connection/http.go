package connection

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmsocial/mmclient/internal/infra/buildinfo"
	"github.com/mmsocial/mmclient/internal/telemetry/logger"
)

// DefaultTimeout bounds a single backend request.
const DefaultTimeout = 30 * time.Second

// RequestIDHeader carries the per-request ULID.
const RequestIDHeader = "X-Request-ID"

// HTTPClient provides HTTP communication with the backend.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  logger.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithTLSConfig sets the TLS config used for https backends.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *HTTPClient) {
		if cfg == nil {
			return
		}
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = cfg
		c.client.Transport = t
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l logger.Logger) Option {
	return func(c *HTTPClient) {
		c.logger = l
	}
}

// NewHTTPClient creates a new HTTP client rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	// Ensure baseURL has http:// prefix
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends one request. body, when non-nil, is encoded as JSON. bearer,
// when non-empty, is sent as an Authorization header. The returned error
// is non-nil only when no response was received.
func (c *HTTPClient) Do(ctx context.Context, method, path string, body any, bearer string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	ctx, reqID := logger.EnsureRequestID(ctx)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", buildinfo.UserAgent())
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, reqID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	log := c.logger.With("method", method, "path", path, "request_id", reqID, "elapsed", time.Since(start))
	if err != nil {
		log.Debug("http request failed", "error", err)
		return nil, err
	}
	log.Debug("http request", "status", resp.StatusCode)
	return resp, nil
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, path, bearer string) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, bearer)
}

// Post performs a POST request with JSON body.
func (c *HTTPClient) Post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.Do(ctx, http.MethodPost, path, body, "")
}

// BaseURL returns the base URL of the client.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// DecodeJSON decodes a response body into target and closes it.
// Trailing bytes after the first JSON value are ignored.
func DecodeJSON(resp *http.Response, target any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// Drain discards and closes a response body so the connection can be
// reused.
func Drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
