package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	bserrors "github.com/perplext/bountyscope/pkg/errors"
)

// ErrRetriesExhausted is wrapped by the error returned when every attempt failed
var ErrRetriesExhausted = errors.New("max retries exceeded")

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	MaxAttempts     int              // Maximum number of attempts, including the first
	InitialDelay    time.Duration    // Initial delay between retries
	MaxDelay        time.Duration    // Maximum delay between retries
	Multiplier      float64          // Multiplier for exponential backoff
	JitterFactor    float64          // Jitter factor (0.0 to 1.0)
	RetryableErrors func(error) bool // Function to determine if error is retryable

	// OnAttemptFailed is called after every failed attempt whose error is retryable
	OnAttemptFailed func(attempt int, err error)

	// DelayFloor, when set, returns the minimum wait the failed attempt asked
	// for. It raises the backoff delay but never past MaxDelay.
	DelayFloor func(err error) time.Duration
}

// DefaultRetryConfig returns the retry policy used for every platform:
// five attempts, 1s base delay doubling up to 60s, 10% jitter, retrying
// transient errors only.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     5,
		InitialDelay:    1 * time.Second,
		MaxDelay:        60 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
		RetryableErrors: IsTransient,
	}
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	return bserrors.Is(err, bserrors.ErrorTypeTransient)
}

// RetryableFunc is a function that can be retried
type RetryableFunc func(ctx context.Context) error

// calculateDelay calculates the delay for a given attempt with jitter
func calculateDelay(attempt int, config RetryConfig) time.Duration {
	// Calculate base delay with exponential backoff
	baseDelay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt))

	// Cap at maximum delay
	if baseDelay > float64(config.MaxDelay) {
		baseDelay = float64(config.MaxDelay)
	}

	// Add jitter
	jitter := baseDelay * config.JitterFactor * (rand.Float64()*2 - 1) // -jitter to +jitter
	finalDelay := baseDelay + jitter

	// Ensure delay is not negative
	if finalDelay < 0 {
		finalDelay = 0
	}

	return time.Duration(finalDelay)
}

func nextDelay(attempt int, config RetryConfig, err error) time.Duration {
	delay := calculateDelay(attempt, config)
	if config.DelayFloor == nil {
		return delay
	}
	floor := min(config.DelayFloor(err), config.MaxDelay)
	return max(delay, floor)
}

// RetryResult holds the result of a retry operation
type RetryResult struct {
	Attempts     int
	Success      bool
	LastError    error
	TotalLatency time.Duration
}

// RetryWithBackoffAndMetrics executes a function with retry logic and returns metrics.
// When every attempt fails the returned error wraps ErrRetriesExhausted and the last error.
func RetryWithBackoffAndMetrics(ctx context.Context, config RetryConfig, fn RetryableFunc) (RetryResult, error) {
	result := RetryResult{}
	startTime := time.Now()
	retryable := config.RetryableErrors
	if retryable == nil {
		retryable = func(error) bool { return true }
	}

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		result.Attempts = attempt + 1

		err := fn(ctx)
		if err == nil {
			result.Success = true
			result.TotalLatency = time.Since(startTime)
			return result, nil
		}
		result.LastError = err

		// Cancellation is never retried
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.TotalLatency = time.Since(startTime)
			return result, fmt.Errorf("retry cancelled: %w", ctxErr)
		}

		if !retryable(err) {
			result.TotalLatency = time.Since(startTime)
			return result, err
		}

		if config.OnAttemptFailed != nil {
			config.OnAttemptFailed(result.Attempts, err)
		}

		if attempt == config.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(nextDelay(attempt, config, err))
		select {
		case <-ctx.Done():
			timer.Stop()
			result.TotalLatency = time.Since(startTime)
			return result, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	result.TotalLatency = time.Since(startTime)
	return result, fmt.Errorf("%w (%d): %w", ErrRetriesExhausted, config.MaxAttempts, result.LastError)
}
