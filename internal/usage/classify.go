package usage

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Category is the classification of a backend failure. Each category maps to
// a distinct cooldown window and a distinct retry policy in the engine.
type Category string

const (
	CategoryNone      Category = "none"
	CategoryRateLimit Category = "rate_limit"
	CategoryAuth      Category = "auth"
	CategoryTransient Category = "transient"
	CategoryRepeated  Category = "repeated_failure"
	CategoryUnknown   Category = "unknown"
)

var rateLimitKeywords = []string{
	"429", "rate limit", "quota", "exceeded", "too many requests",
	"rate_limit_exceeded", "quota_exceeded", "limit exceeded",
	"insufficient_quota", "billing",
}

var authKeywords = []string{
	"api key", "authentication", "unauthorized", "401", "403", "invalid key",
}

var transientKeywords = []string{
	"500", "502", "503", "504", "timeout", "connection", "service unavailable",
}

var retryAfterPattern = regexp.MustCompile(`retry.after\D{0,3}(\d+)`)

// Classify maps an error message to a failure category by case-insensitive
// substring matching, first match wins. Repeated-failure promotion happens in
// the tracker, which knows the consecutive failure count.
func Classify(errMsg string) Category {
	if errMsg == "" {
		return CategoryUnknown
	}
	lower := strings.ToLower(errMsg)

	if containsAny(lower, rateLimitKeywords) {
		return CategoryRateLimit
	}
	if containsAny(lower, authKeywords) {
		return CategoryAuth
	}
	if containsAny(lower, transientKeywords) {
		return CategoryTransient
	}
	return CategoryUnknown
}

// MustSwitchBackend reports whether a failure category means the next attempt
// should go to a different backend immediately. Transient errors may retry
// the same selection loop; everything else is attributable to the backend.
func MustSwitchBackend(c Category) bool {
	return c != CategoryTransient
}

// parseRetryAfter extracts a provider-supplied retry-after duration from an
// error message, if present. Returns 0 when the message carries none.
func parseRetryAfter(lowerMsg string) time.Duration {
	if !strings.Contains(lowerMsg, "retry-after") && !strings.Contains(lowerMsg, "retry after") {
		return 0
	}
	m := retryAfterPattern.FindStringSubmatch(lowerMsg)
	if m == nil {
		return 0
	}
	secs, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
