package errors

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// Classify assigns a tier to an arbitrary error coming back from a
// provider SDK. Already-tiered errors keep their tier; everything else
// is classified by status code and message content.
func Classify(err error) *TieredError {
	if err == nil {
		return nil
	}

	var te *TieredError
	if errors.As(err, &te) {
		return te
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	if isRateLimitMessage(lower) {
		classified := NewTieredError(TierRateLimit, "backend rate limit", err).
			WithStatusCode(http.StatusTooManyRequests)
		if isDailyQuotaMessage(lower) {
			classified.AsDailyQuota()
		}
		return classified
	}

	if code, ok := degradingStatus(msg); ok {
		return NewTieredError(TierDegrading, "backend degraded", err).WithStatusCode(code)
	}

	if isTransientMessage(lower) {
		return NewTieredError(TierTransient, "transient transport failure", err)
	}

	return NewTieredError(TierPermanent, "backend rejected request", err)
}

var rateLimitKeywords = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"429",
	"quota",
}

func isRateLimitMessage(lower string) bool {
	for _, kw := range rateLimitKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var dailyQuotaKeywords = []string{
	"daily",
	"quota exceeded",
	"resource_exhausted",
	"exceeded your current quota",
}

func isDailyQuotaMessage(lower string) bool {
	for _, kw := range dailyQuotaKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var degradingStatuses = []int{
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
	529, // anthropic overloaded
}

func degradingStatus(msg string) (int, bool) {
	for _, code := range degradingStatuses {
		if strings.Contains(msg, strconv.Itoa(code)) {
			return code, true
		}
	}
	if strings.Contains(strings.ToLower(msg), "overloaded") {
		return http.StatusServiceUnavailable, true
	}
	return 0, false
}

var transientKeywords = []string{
	"timeout",
	"timed out",
	"temporary",
	"connection reset",
	"connection refused",
	"eof",
	"broken pipe",
	"network unreachable",
	"no route to host",
}

func isTransientMessage(lower string) bool {
	for _, kw := range transientKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
