// Package api is the REST side channel of the analytics backend: threads,
// stored messages, documents, CSV data, workbooks, users and the learning
// queue.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/soyeahso/querydesk/internal/config"
	"github.com/soyeahso/querydesk/internal/logging"
)

const maxResponseBody = 8 << 20

// Error is returned by every Client method. Its message is the short,
// user-facing text for the failed operation; the cause is kept for logs.
type Error struct {
	Op     string // e.g. "failed to fetch threads"
	Status int    // HTTP status, 0 when no response was received
	Err    error
}

func (e *Error) Error() string { return e.Op }

func (e *Error) Unwrap() error { return e.Err }

// Detail returns the message together with the underlying cause.
func (e *Error) Detail() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s (%d): %v", e.Op, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op
	}
}

// Client talks JSON to the backend. Idempotent calls are retried on
// connection errors and 5xx responses.
type Client struct {
	baseURL   string
	token     string
	userAgent string
	http      *retryablehttp.Client
	once      *retryablehttp.Client // no retries
	log       *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRetryWait sets the backoff bounds between retries.
func WithRetryWait(lo, hi time.Duration) Option {
	return func(c *Client) {
		c.http.RetryWaitMin = lo
		c.http.RetryWaitMax = hi
	}
}

// New creates a client for the backend at baseURL.
func New(baseURL string, cfg config.HTTPConfig, log *logging.Logger, opts ...Option) *Client {
	log = log.Sub("api")
	hc := &http.Client{Timeout: cfg.Timeout}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = hc
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 250 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = leveledLogger{log}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	once := retryablehttp.NewClient()
	once.HTTPClient = hc
	once.RetryMax = 0
	once.Logger = leveledLogger{log}
	once.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    rc,
		once:    once,
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call describes one request.
type call struct {
	op          string
	method      string
	path        string
	body        any    // JSON encoded when set
	raw         []byte // sent as-is with contentType when set
	contentType string
	header      http.Header
	noRetry     bool
}

func (c *Client) url(path string) string {
	return c.baseURL + "/" + path
}

// seg escapes one path segment.
func seg(s string) string { return url.PathEscape(s) }

// do performs the call and decodes a JSON response into out, if non-nil.
func (c *Client) do(ctx context.Context, cl call, out any) error {
	fail := func(status int, err error) error {
		e := &Error{Op: cl.op, Status: status, Err: err}
		c.log.Debug().Str("method", cl.method).Str("path", cl.path).Msg(e.Detail())
		return e
	}

	var body any
	contentType := cl.contentType
	switch {
	case cl.raw != nil:
		body = cl.raw
	case cl.body != nil:
		b, err := json.Marshal(cl.body)
		if err != nil {
			return fail(0, fmt.Errorf("encode request: %w", err))
		}
		body = b
		contentType = "application/json"
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, cl.method, c.url(cl.path), body)
	if err != nil {
		return fail(0, err)
	}
	for k, vs := range cl.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	hc := c.http
	if cl.noRetry {
		hc = c.once
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fail(0, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fail(resp.StatusCode, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fail(resp.StatusCode, fmt.Errorf("unexpected status: %s", snippet(data)))
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fail(resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "empty body"
	}
	return s
}

// leveledLogger routes retryablehttp's logging into zerolog.
type leveledLogger struct {
	log *logging.Logger
}

func (l leveledLogger) Error(msg string, kv ...any) { l.log.Warn().Fields(kv).Msg(msg) }
func (l leveledLogger) Warn(msg string, kv ...any)  { l.log.Warn().Fields(kv).Msg(msg) }
func (l leveledLogger) Info(msg string, kv ...any)  { l.log.Debug().Fields(kv).Msg(msg) }
func (l leveledLogger) Debug(msg string, kv ...any) { l.log.Debug().Fields(kv).Msg(msg) }
