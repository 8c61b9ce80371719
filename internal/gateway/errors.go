package gateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/TobiSchelling/BikeScout/internal/llm"
)

var (
	// ErrDailyBudgetExhausted is returned without waiting once the calendar
	// day's call budget is spent. It is never retried.
	ErrDailyBudgetExhausted = errors.New("gateway: daily call budget exhausted")
	// ErrQuotaUnavailable means both the primary and secondary model report
	// zero quota.
	ErrQuotaUnavailable = errors.New("gateway: model quota unavailable")
	// ErrModelNotFound means the model and its fallback were both rejected.
	ErrModelNotFound = errors.New("gateway: model not found")
	// ErrTransient wraps the last timeout or rate-limit error after the
	// retry policy gave up.
	ErrTransient = errors.New("gateway: transient failure")
	// ErrUnauthorized is a 401/403 from the provider.
	ErrUnauthorized = errors.New("gateway: unauthorized")
)

func statusOf(err error) int {
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func isZeroQuota(err error) bool {
	var apiErr *llm.APIError
	return errors.As(err, &apiErr) && apiErr.IsZeroQuota()
}

func retryAfterOf(err error) time.Duration {
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}

// IsTimeout reports whether err is a call timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// IsRateLimited reports whether err is a rate-limit or overload reply.
func IsRateLimited(err error) bool {
	switch statusOf(err) {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return !isZeroQuota(err)
	}
	return false
}

// IsFatal reports errors that must short-circuit the listing instead of
// degrading to deterministic facts.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDailyBudgetExhausted) || errors.Is(err, ErrUnauthorized)
}
