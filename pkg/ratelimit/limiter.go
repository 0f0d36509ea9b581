// Package ratelimit paces upstream requests with a token bucket shared by
// every page worker of a batch.
//
// VK allows a small number of API calls per second per access token; going
// over it turns whole batches into "too many requests" errors, which the
// crawler does not retry.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for request pacing.
var (
	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_rate_limit_waits_total",
		Help: "Total number of requests that had to wait for a rate limit token",
	})

	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crawler_rate_limit_wait_seconds",
		Help:    "Time requests spent waiting for a rate limit token",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	rateLimitCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_rate_limit_cancelled_total",
		Help: "Total number of waits abandoned because the request context ended",
	})
)

// Config holds limiter configuration.
type Config struct {
	// RequestsPerSecond is the sustained rate. Zero or less disables pacing.
	RequestsPerSecond float64

	// Burst is the number of requests that may start back to back.
	Burst int
}

// DefaultConfig returns the VK per-token limit of 3 requests per second.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 3,
		Burst:             1,
	}
}

// Limiter gates requests.
type Limiter struct {
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewLimiter creates a limiter.
func NewLimiter(cfg Config, logger zerolog.Logger) *Limiter {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Limiter{
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// Unlimited returns a limiter that never waits.
func Unlimited() *Limiter {
	return NewLimiter(Config{}, zerolog.Nop())
}

// Wait blocks until a request may start or ctx ends.
func (l *Limiter) Wait(ctx context.Context) error {
	r := l.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("rate limiter: burst exceeded")
	}

	delay := r.Delay()
	if delay <= 0 {
		return nil
	}

	rateLimitWaitsTotal.Inc()
	l.logger.Debug().
		Dur("delay", delay).
		Msg("Request throttled by rate limiter")

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		rateLimitWaitSeconds.Observe(delay.Seconds())
		return nil
	case <-ctx.Done():
		r.Cancel()
		rateLimitCancelledTotal.Inc()
		return fmt.Errorf("rate limiter: %w", ctx.Err())
	}
}

// Limit returns the configured sustained rate.
func (l *Limiter) Limit() rate.Limit {
	return l.limiter.Limit()
}
