// Package ratelimit throttles the authentication endpoints per client IP,
// and per identity once a request is authenticated.
//
// Handler keys on the connection address, so it must run after any
// middleware that rewrites RemoteAddr from trusted proxy headers.
// UserHandler keys on the authenticated identity and must be mounted after
// the authentication middleware.
package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tendant/lms-auth/pkg/auth"
	apperrors "github.com/tendant/lms-auth/pkg/errors"
	"github.com/tendant/lms-auth/pkg/response"
)

// Config holds rate limiting configuration.
type Config struct {
	RequestsPerSecond float64
	Burst             int

	// PerUser applies a separate bucket keyed by identity id to requests
	// that already carry an authenticated user.
	PerUser bool
	// UserRequestsPerSecond and UserBurst size the per-identity bucket.
	// Zero means twice the per-IP values.
	UserRequestsPerSecond float64
	UserBurst             int

	// BucketTTL is how long an idle bucket is kept in memory.
	BucketTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 1,
		Burst:             10,
		PerUser:           true,
		BucketTTL:         10 * time.Minute,
	}
}

// Middleware holds the rate limiting middleware state.
type Middleware struct {
	config      Config
	ipLimiter   *RateLimiter
	userLimiter *RateLimiter
}

func NewMiddleware(config Config) *Middleware {
	m := &Middleware{
		config:    config,
		ipLimiter: NewRateLimiter(config.RequestsPerSecond, config.Burst, config.BucketTTL),
	}
	if config.PerUser {
		rps, burst := config.UserRequestsPerSecond, config.UserBurst
		if rps <= 0 {
			rps = config.RequestsPerSecond * 2
		}
		if burst <= 0 {
			burst = config.Burst * 2
		}
		m.userLimiter = NewRateLimiter(rps, burst, config.BucketTTL)
	}
	return m
}

// Handler rejects requests over the per-IP limit with RATE_LIMITED and a
// Retry-After header.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ok, wait := m.ipLimiter.Allow(response.ClientIP(r)); !ok {
			m.rateLimitExceeded(w, r, "ip", wait)
			return
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.config.Burst))
		next.ServeHTTP(w, r)
	})
}

// UserHandler applies the per-identity limit. Requests without an
// authenticated user pass through unchanged.
func (m *Middleware) UserHandler(next http.Handler) http.Handler {
	if m.userLimiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, ok := auth.FromContext(r.Context()); ok {
			if ok, wait := m.userLimiter.Allow(user.Identity.ID.String()); !ok {
				m.rateLimitExceeded(w, r, "user", wait)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) rateLimitExceeded(w http.ResponseWriter, r *http.Request, limitType string, wait time.Duration) {
	slog.Warn("Rate limit exceeded", "type", limitType, "ip", response.ClientIP(r), "path", r.URL.Path, "method", r.Method)
	response.Error(w, r, apperrors.RateLimited(wait))
}

// Reset clears the limits recorded for an IP or identity id.
func (m *Middleware) Reset(key string) {
	m.ipLimiter.Reset(key)
	if m.userLimiter != nil {
		m.userLimiter.Reset(key)
	}
}

// RunCleanup sweeps idle buckets every BucketTTL until ctx is done.
func (m *Middleware) RunCleanup(ctx context.Context) {
	if m.config.BucketTTL <= 0 {
		return
	}
	ticker := time.NewTicker(m.config.BucketTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := m.ipLimiter.Sweep()
			if m.userLimiter != nil {
				n += m.userLimiter.Sweep()
			}
			if n > 0 {
				slog.Debug("Swept idle rate limit buckets", "removed", n)
			}
		}
	}
}
