package usage

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		want Category
	}{
		{"429 rate limit exceeded", CategoryRateLimit},
		{"Too Many Requests", CategoryRateLimit},
		{"insufficient_quota: please upgrade", CategoryRateLimit},
		{"quota_exceeded for project", CategoryRateLimit},
		{"Invalid API key provided", CategoryAuth},
		{"401 Unauthorized", CategoryAuth},
		{"403 forbidden", CategoryAuth},
		{"authentication failed", CategoryAuth},
		{"502 Bad Gateway", CategoryTransient},
		{"connection refused", CategoryTransient},
		{"request timeout after 30s", CategoryTransient},
		{"Service Unavailable", CategoryTransient},
		{"something strange happened", CategoryUnknown},
		{"", CategoryUnknown},
	}
	for _, tt := range tests {
		if got := Classify(tt.msg); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.msg, got, tt.want)
		}
	}
}

func TestClassify_RateLimitWinsOverTransient(t *testing.T) {
	// First match wins: a 429 that also mentions a timeout is still a rate
	// limit.
	if got := Classify("429 too many requests, connection timeout"); got != CategoryRateLimit {
		t.Errorf("expected rate_limit, got %s", got)
	}
}

func TestMustSwitchBackend(t *testing.T) {
	tests := []struct {
		category Category
		want     bool
	}{
		{CategoryRateLimit, true},
		{CategoryAuth, true},
		{CategoryUnknown, true},
		{CategoryRepeated, true},
		{CategoryTransient, false},
	}
	for _, tt := range tests {
		if got := MustSwitchBackend(tt.category); got != tt.want {
			t.Errorf("MustSwitchBackend(%s) = %v, want %v", tt.category, got, tt.want)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		msg  string
		want time.Duration
	}{
		{"429 rate limit, retry-after: 25", 25 * time.Second},
		{"quota exceeded. retry after 60 seconds", 60 * time.Second},
		{"retry-after header missing a value", 0},
		{"429 rate limit exceeded", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.msg); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}
