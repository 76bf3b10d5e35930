// Package ratelimit implements a token bucket rate limiter shared by all
// outbound API callers.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/labor-market-etl/internal/telemetry"
)

// Limiter manages per-host rate limits. Permit acquisition is FIFO per
// host (x/time/rate reserves tokens in arrival order), so no concurrent
// batch starves.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	overrides    map[string]Config
}

// Config holds rate limiter settings for one host class.
type Config struct {
	RPS   float64
	Burst int
}

// New creates a Limiter with a default rate and optional per-host
// overrides (e.g. a stricter budget for the statistics agency).
func New(defaults Config, overrides map[string]Config) *Limiter {
	r := rate.Limit(defaults.RPS)
	if defaults.RPS <= 0 {
		r = rate.Inf
	}
	burst := defaults.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
		overrides:    overrides,
	}
}

// Wait blocks until a token is available for the host of the given URL,
// respecting the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}

	l.mu.Lock()
	limiter, exists := l.limiters[host]
	if !exists {
		r, burst := l.defaultRate, l.defaultBurst
		if o, ok := l.overrides[host]; ok {
			if o.RPS > 0 {
				r = rate.Limit(o.RPS)
			}
			if o.Burst > 0 {
				burst = o.Burst
			}
		}
		limiter = rate.NewLimiter(r, burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if d := time.Since(start); d > time.Millisecond {
		telemetry.ObserveRateLimitDelay(host, d)
	}
	return nil
}
