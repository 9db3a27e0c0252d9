package app

import (
	"context"
	"testing"
	"time"
)

func TestRedisRateLimiter_DisabledWithoutClient(t *testing.T) {
	limiter := NewRedisRateLimiter(nil, "")
	count, retryAfter, err := limiter.ConsumeRateLimit(context.Background(), "scope", "subject", 5, time.Minute)
	if err != nil || count != 0 || retryAfter != 0 {
		t.Fatalf("expected disabled limiter to allow, got count=%d retry=%d err=%v", count, retryAfter, err)
	}
}

func TestRedisRateLimiter_KeyLayout(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{prefix: "", want: "dincash:rate_limit:{u1}:withdrawal_request:1700000040000"},
		{prefix: " custom: ", want: "custom:{u1}:withdrawal_request:1700000040000"},
		{prefix: ":", want: "dincash:rate_limit:{u1}:withdrawal_request:1700000040000"},
	}
	for _, tt := range tests {
		limiter := NewRedisRateLimiter(nil, tt.prefix)
		if got := limiter.key(rateLimitScopeWithdrawal, "u1", 1700000040000); got != tt.want {
			t.Fatalf("expected key %q, got %q", tt.want, got)
		}
	}
}

func TestWindowBounds(t *testing.T) {
	now := time.UnixMilli(1700000075500)

	start, end := windowBounds(now, time.Minute)
	if start != 1700000040000 || end != 1700000100000 {
		t.Fatalf("expected minute window [1700000040000, 1700000100000), got [%d, %d)", start, end)
	}
	if got := retryAfterFromMillis(end - now.UnixMilli()); got != 25 {
		t.Fatalf("expected retry after 25s, got %d", got)
	}

	start, end = windowBounds(now, 10*time.Millisecond)
	if end-start != 1000 {
		t.Fatalf("expected sub-second window widened to 1s, got %dms", end-start)
	}
}

func TestRetryAfterFromMillis(t *testing.T) {
	tests := []struct {
		ttl  int64
		want int
	}{
		{ttl: 0, want: 1},
		{ttl: 999, want: 1},
		{ttl: 1001, want: 2},
		{ttl: 60000, want: 60},
	}
	for _, tt := range tests {
		if got := retryAfterFromMillis(tt.ttl); got != tt.want {
			t.Fatalf("ttl %d: expected %d, got %d", tt.ttl, tt.want, got)
		}
	}
}
