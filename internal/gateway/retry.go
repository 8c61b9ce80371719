package gateway

import (
	"math/rand/v2"
	"time"
)

// RetryPolicy is one retry schedule together with the errors it applies to.
type RetryPolicy struct {
	Name        string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter adds a random 0..Jitter to computed delays.
	Jitter      time.Duration
	Exponential bool
	// HonorRetryAfter uses the server's Retry-After when present.
	HonorRetryAfter bool
	Retryable       func(error) bool
}

// TimeoutPolicy retries timeouts a few times with a fixed pause.
func TimeoutPolicy(attempts int, delay time.Duration) RetryPolicy {
	return RetryPolicy{
		Name:        "timeout",
		MaxAttempts: attempts,
		BaseDelay:   delay,
		MaxDelay:    delay,
		Retryable:   IsTimeout,
	}
}

// RateLimitPolicy backs off exponentially with jitter on rate-limit replies.
func RateLimitPolicy(attempts int, base, max, jitter time.Duration) RetryPolicy {
	return RetryPolicy{
		Name:            "rate_limit",
		MaxAttempts:     attempts,
		BaseDelay:       base,
		MaxDelay:        max,
		Jitter:          jitter,
		Exponential:     true,
		HonorRetryAfter: true,
		Retryable:       IsRateLimited,
	}
}

// Delay is the pause after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int, err error) time.Duration {
	if p.HonorRetryAfter {
		if ra := retryAfterOf(err); ra > 0 {
			return ra
		}
	}
	d := p.BaseDelay
	if p.Exponential && attempt > 1 {
		d = p.BaseDelay * time.Duration(1<<(attempt-1))
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		d += time.Duration(rand.Int64N(int64(p.Jitter)))
	}
	return d
}
