package httpclient

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures client-level rate limiting.
//
// One token is taken per logical call. Failover attempts and redirects of
// that call do not take further tokens.
type RateLimitConfig struct {
	// RequestsPerSecond is the maximum sustained call rate.
	RequestsPerSecond float64

	// Burst is the maximum number of calls allowed in a burst.
	// This allows brief spikes above the rate limit.
	Burst int

	// WaitOnLimit determines behavior when rate limit is hit.
	// If true, calls wait for a token (respecting context deadline).
	// If false, calls immediately return ErrRateLimited.
	WaitOnLimit bool
}

// DefaultRateLimitConfig returns a sensible default rate limit configuration.
// 100 calls per second with a burst of 10.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             10,
		WaitOnLimit:       true,
	}
}

// RateLimitBehavior specifies how to handle rate limit exceeded.
type RateLimitBehavior int

const (
	// RateLimitWait waits for a token to become available (default).
	RateLimitWait RateLimitBehavior = iota
	// RateLimitFailFast immediately returns ErrRateLimited.
	RateLimitFailFast
)

// NewRateLimitConfigWithBehavior creates a rate limit config with specified behavior.
func NewRateLimitConfigWithBehavior(
	rps float64,
	burst int,
	behavior RateLimitBehavior,
) RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: rps,
		Burst:             burst,
		WaitOnLimit:       behavior == RateLimitWait,
	}
}

// ErrRateLimited is returned when a call is rejected due to rate limiting.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimiterStats provides visibility into rate limiter state.
type RateLimiterStats struct {
	// Limit is the maximum rate per second.
	Limit float64
	// Burst is the maximum burst size.
	Burst int
	// TokensAvailable is the current number of tokens.
	TokensAvailable float64
}

// newLimiter returns nil when rate limiting is off.
func newLimiter(cfg *RateLimitConfig) *rate.Limiter {
	if cfg == nil || cfg.RequestsPerSecond <= 0 {
		return nil
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = 1 // Minimum burst of 1
	}

	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

// acquire takes the token for one logical call.
func (c *Client) acquire(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}

	if c.config.RateLimit.WaitOnLimit {
		// Wait for token, respecting context deadline
		if err := c.limiter.Wait(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return err
			}
			c.config.Metrics.recordRateLimited(ctx, c.config.baseAttributes())
			return ErrRateLimited
		}
		return nil
	}

	// Fail fast if no token available
	if !c.limiter.Allow() {
		c.config.Metrics.recordRateLimited(ctx, c.config.baseAttributes())
		return ErrRateLimited
	}
	return nil
}

// RateLimiterStats returns the state of the client's rate limiter. The zero
// value is returned when rate limiting is off.
func (c *Client) RateLimiterStats() RateLimiterStats {
	if c.limiter == nil {
		return RateLimiterStats{}
	}
	return RateLimiterStats{
		Limit:           float64(c.limiter.Limit()),
		Burst:           c.limiter.Burst(),
		TokensAvailable: c.limiter.Tokens(),
	}
}
