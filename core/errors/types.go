// Package errors implements the tiered error taxonomy used by the
// generation gateway: classification decides whether a failure is
// retried, redirected to another tier, or surfaced immediately.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorTier classifies a failure by its handling behavior.
type ErrorTier int

const (
	// TierTransient covers temporary transport failures that should be
	// silently retried: timeouts, connection resets, 5xx blips.
	TierTransient ErrorTier = iota

	// TierPermanent covers failures that will not resolve with retry:
	// malformed requests, authentication failures.
	TierPermanent

	// TierRateLimit covers rate-limit and daily-quota responses from the
	// generation backend. A daily-quota error additionally marks the
	// tier exhausted, so the current call is not retried.
	TierRateLimit

	// TierDegrading covers sustained backend degradation (5xx streaks,
	// overloaded responses) retried with longer delays.
	TierDegrading

	// TierSchema covers structured-output responses that do not parse as
	// the requested schema. Retrying an already-malformed completion
	// rarely helps, so these fail immediately.
	TierSchema
)

var tierNames = map[ErrorTier]string{
	TierTransient: "transient",
	TierPermanent: "permanent",
	TierRateLimit: "rate_limit",
	TierDegrading: "degrading",
	TierSchema:    "schema",
}

func (t ErrorTier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "unknown"
}

// TieredError wraps an error with tier classification.
type TieredError struct {
	Tier       ErrorTier
	Message    string
	Underlying error
	StatusCode int
	RetryAfter time.Duration
	DailyQuota bool
}

func (e *TieredError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Tier, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s] %s", e.Tier, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *TieredError) Unwrap() error {
	return e.Underlying
}

// Is matches another TieredError by tier.
func (e *TieredError) Is(target error) bool {
	var te *TieredError
	if errors.As(target, &te) {
		return e.Tier == te.Tier
	}
	return false
}

// NewTieredError creates a TieredError with the given tier and message.
func NewTieredError(tier ErrorTier, message string, underlying error) *TieredError {
	return &TieredError{
		Tier:       tier,
		Message:    message,
		Underlying: underlying,
	}
}

// WithStatusCode records the HTTP status carried by the failure.
func (e *TieredError) WithStatusCode(code int) *TieredError {
	e.StatusCode = code
	return e
}

// WithRetryAfter records a server-suggested retry delay.
func (e *TieredError) WithRetryAfter(d time.Duration) *TieredError {
	e.RetryAfter = d
	return e
}

// AsDailyQuota marks the error as a day-quota exhaustion rather than a
// momentary rate limit.
func (e *TieredError) AsDailyQuota() *TieredError {
	e.DailyQuota = true
	return e
}

// GetTier extracts the tier from an error, defaulting to Permanent.
func GetTier(err error) ErrorTier {
	var te *TieredError
	if errors.As(err, &te) {
		return te.Tier
	}
	return TierPermanent
}

// IsRetryable reports whether the error's tier is retried at all.
func IsRetryable(err error) bool {
	switch GetTier(err) {
	case TierTransient, TierDegrading:
		return true
	case TierRateLimit:
		return !IsDailyQuota(err)
	default:
		return false
	}
}

// IsDailyQuota reports whether the error represents day-quota
// exhaustion of a backend tier.
func IsDailyQuota(err error) bool {
	var te *TieredError
	if errors.As(err, &te) {
		return te.DailyQuota
	}
	return false
}

// Sentinel errors for the common failure shapes.
var (
	ErrTimeout       = NewTieredError(TierTransient, "operation timed out", nil)
	ErrUnavailable   = NewTieredError(TierDegrading, "service unavailable", nil).WithStatusCode(http.StatusServiceUnavailable)
	ErrRateLimited   = NewTieredError(TierRateLimit, "rate limited", nil).WithStatusCode(http.StatusTooManyRequests)
	ErrQuotaExceeded = NewTieredError(TierRateLimit, "daily quota exceeded", nil).AsDailyQuota()
	ErrInvalidInput  = NewTieredError(TierPermanent, "invalid request", nil)
	ErrSchemaParse   = NewTieredError(TierSchema, "response does not match requested schema", nil)
)

// WrapWithTier wraps an error with a tier, preserving an existing tier
// if the error is already classified.
func WrapWithTier(tier ErrorTier, message string, err error) error {
	if err == nil {
		return nil
	}

	var te *TieredError
	if errors.As(err, &te) {
		return &TieredError{
			Tier:       te.Tier,
			Message:    message,
			Underlying: err,
			StatusCode: te.StatusCode,
			RetryAfter: te.RetryAfter,
			DailyQuota: te.DailyQuota,
		}
	}

	return NewTieredError(tier, message, err)
}
