// Package httpclient wraps net/http with the shared rate limiter, retry
// policy, and request logging the upstream statistical APIs require.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/labor-market-etl/internal/pipeline"
	"github.com/JakeFAU/labor-market-etl/internal/telemetry"
)

// Waiter gates outbound requests. Satisfied by *ratelimit.Limiter.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Sleeper pauses between retries. Replaced with a fake in tests.
type Sleeper func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Config controls the client's timeout and retry behavior.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	Retry     RetryPolicy
}

// Client issues rate-limited, retried HTTP requests.
type Client struct {
	inner     *http.Client
	limiter   Waiter
	cfg       Config
	logger    *zap.Logger
	sleep     Sleeper
	userAgent string
}

// New creates a Client. A nil limiter disables gating (tests only).
func New(limiter Waiter, cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "labor-market-etl/1.0"
	}
	return &Client{
		inner:     &http.Client{Timeout: cfg.Timeout},
		limiter:   limiter,
		cfg:       cfg,
		logger:    logger,
		sleep:     defaultSleep,
		userAgent: ua,
	}
}

// WithSleeper replaces the inter-retry sleep (for tests).
func (c *Client) WithSleeper(s Sleeper) *Client {
	c.sleep = s
	return c
}

// WithTransport replaces the underlying round tripper (for tests).
func (c *Client) WithTransport(rt http.RoundTripper) *Client {
	c.inner.Transport = rt
	return c
}

// Do executes the request under the rate limiter, retrying transient
// failures with jittered backoff. The request body, if any, must be
// rewindable; Do buffers it once so retries can replay it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	host := req.URL.Hostname()

	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("buffer request body: %w", err)
		}
		if cerr := req.Body.Close(); cerr != nil {
			c.logger.Debug("close request body", zap.Error(cerr))
		}
		body = b
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.Retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			telemetry.ObserveRetry(host)
			if err := c.sleep(ctx, c.cfg.Retry.Backoff(attempt-1)); err != nil {
				return nil, fmt.Errorf("retry backoff: %w", err)
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx, req.URL.String()); err != nil {
				return nil, err
			}
		}

		attemptReq := req.Clone(ctx)
		if body != nil {
			attemptReq.Body = io.NopCloser(bytes.NewReader(body))
			attemptReq.ContentLength = int64(len(body))
		}

		start := time.Now()
		resp, err := c.inner.Do(attemptReq)
		elapsed := time.Since(start)

		switch {
		case err != nil:
			telemetry.ObserveAPIRequest(host, 0, elapsed)
			c.logger.Warn("request failed",
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt+1),
				zap.Duration("elapsed", elapsed),
				zap.Error(err))
			lastErr = &pipeline.TransientError{Err: err}
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			telemetry.ObserveAPIRequest(host, resp.StatusCode, elapsed)
			drainAndClose(resp)
			c.logger.Warn("retryable status",
				zap.String("url", req.URL.String()),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1))
			if resp.StatusCode == http.StatusTooManyRequests {
				lastErr = &pipeline.TransientError{Err: pipeline.ErrRateLimited}
			} else {
				lastErr = &pipeline.TransientError{Err: fmt.Errorf("status %d", resp.StatusCode)}
			}
		case resp.StatusCode >= 400:
			telemetry.ObserveAPIRequest(host, resp.StatusCode, elapsed)
			drainAndClose(resp)
			return nil, &permanentError{err: fmt.Errorf("%s: status %d", req.URL.String(), resp.StatusCode)}
		default:
			telemetry.ObserveAPIRequest(host, resp.StatusCode, elapsed)
			c.logger.Debug("request ok",
				zap.String("url", req.URL.String()),
				zap.Int("status", resp.StatusCode),
				zap.Duration("elapsed", elapsed))
			return resp, nil
		}

		if !c.cfg.Retry.ShouldRetry(lastErr, attempt) {
			break
		}
	}
	return nil, fmt.Errorf("retries exhausted for %s: %w", req.URL.String(), lastErr)
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
