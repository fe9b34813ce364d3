package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/sells-group/vis2attr/internal/apperr"
)

// KindForStatus maps a provider HTTP status to an error kind.
func KindForStatus(status int) apperr.Kind {
	switch {
	case status == http.StatusTooManyRequests, status == 529:
		return apperr.KindRateLimit
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return apperr.KindTimeout
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return apperr.KindConfig
	default:
		return apperr.KindAPI
	}
}

var (
	rateLimitPatterns = []string{"rate limit", "rate_limit", "too many requests", "quota"}
	timeoutPatterns   = []string{"timeout", "timed out", "deadline exceeded"}
)

// KindForMessage classifies a provider error body or message by keyword.
// It returns fallback when nothing matches.
func KindForMessage(msg string, fallback apperr.Kind) apperr.Kind {
	lower := strings.ToLower(msg)
	for _, p := range rateLimitPatterns {
		if strings.Contains(lower, p) {
			return apperr.KindRateLimit
		}
	}
	for _, p := range timeoutPatterns {
		if strings.Contains(lower, p) {
			return apperr.KindTimeout
		}
	}
	return fallback
}

// KindForTransport classifies an error returned before any HTTP response
// arrived. Timeouts are retryable; everything else is an API failure.
func KindForTransport(err error) apperr.Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return apperr.KindCanceled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperr.KindTimeout
	}
	return KindForMessage(err.Error(), apperr.KindAPI)
}
