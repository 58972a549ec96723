package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/park285/chess-insights-board/internal/msgcat"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var (
	ErrInvalidUsername = errors.New("invalid username")
	ErrPlayerNotFound  = errors.New("player not found")
	ErrServerError     = errors.New("insights server error")
)

// StatusError reports a non-2xx answer other than 404 and 500.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("insights api error: status=%d body=%s", e.Code, e.Body)
}

// Fetcher loads a player's insights profile.
type Fetcher interface {
	Fetch(ctx context.Context, username string) (*Profile, error)
}

// Refresher is a Fetcher that can bypass its cache.
type Refresher interface {
	Fetcher
	Refresh(ctx context.Context, username string) (*Profile, error)
}

type Client struct {
	baseURL string
	http    *fasthttp.Client
	log     *zap.Logger

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 32},
		log:            zap.NewNop(),
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch performs GET {base}/api/insights/{username}.
func (c *Client) Fetch(ctx context.Context, username string) (*Profile, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrInvalidUsername
	}
	var p Profile
	if err := c.getJSON(ctx, "/api/insights/"+url.PathEscape(username), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set("Accept", "application/json")

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt == attempts {
				return lastErr
			}
			c.log.Warn("insights request failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			err := classifyStatus(status, string(resp.Body()))
			if attempt == attempts || !shouldRetryStatus(status) {
				return err
			}
			lastErr = err
			c.log.Warn("insights request returned retryable status", zap.Int("status", status), zap.Int("attempt", attempt))
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func classifyStatus(status int, body string) error {
	switch status {
	case fasthttp.StatusNotFound:
		return ErrPlayerNotFound
	case fasthttp.StatusInternalServerError:
		return ErrServerError
	default:
		return &StatusError{Code: status, Body: truncate(body, 512)}
	}
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

// 500 is a completed analysis failure on the backend and is not retried.
func shouldRetryStatus(code int) bool {
	switch code {
	case 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Message returns the user-facing text for a fetch error.
func Message(cat *msgcat.Catalog, err error) string {
	var se *StatusError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidUsername):
		return cat.Text("insights.invalid_username", nil)
	case errors.Is(err, ErrPlayerNotFound):
		return cat.Text("insights.not_found", nil)
	case errors.Is(err, ErrServerError):
		return cat.Text("insights.server_error", nil)
	case errors.As(err, &se):
		return cat.Text("insights.unexpected", map[string]any{"Status": se.Code})
	default:
		return cat.Text("insights.unavailable", nil)
	}
}
