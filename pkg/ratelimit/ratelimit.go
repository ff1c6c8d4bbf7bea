package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces the requests of a single client. It combines a token
// bucket with an optional fixed gap between consecutive requests.
type RateLimiter struct {
	limiter *rate.Limiter
	config  Config

	mu   sync.Mutex
	last time.Time
}

// Config holds rate limiter configuration
type Config struct {
	RPS          float64       // Requests per second, 0 for unlimited
	Burst        int           // Burst capacity
	RequestDelay time.Duration // Minimum gap between the start of two requests
}

// DefaultConfig returns a default rate limiter configuration
func DefaultConfig() Config {
	return Config{
		RPS:   10.0,
		Burst: 20,
	}
}

// New creates a new RateLimiter instance
func New(config Config) *RateLimiter {
	limit := rate.Inf
	if config.RPS > 0 {
		limit = rate.Limit(config.RPS)
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(limit, config.Burst),
		config:  config,
	}
}

// Wait blocks until a request can be made
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := rl.limiter.Wait(ctx); err != nil {
		return err
	}
	if rl.config.RequestDelay <= 0 {
		return nil
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if !rl.last.IsZero() {
		if gap := time.Until(rl.last.Add(rl.config.RequestDelay)); gap > 0 {
			timer := time.NewTimer(gap)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	rl.last = time.Now()
	return nil
}

// Stats returns the limiter's configuration
func (rl *RateLimiter) Stats() Stats {
	return Stats{
		RPS:          rl.config.RPS,
		Burst:        rl.config.Burst,
		RequestDelay: rl.config.RequestDelay,
	}
}

// Stats describes a limiter's pacing
type Stats struct {
	RPS          float64
	Burst        int
	RequestDelay time.Duration
}

// String returns a string representation of the rate limiter stats
func (s Stats) String() string {
	return fmt.Sprintf("RPS: %.2f, Burst: %d, Delay: %s", s.RPS, s.Burst, s.RequestDelay)
}
