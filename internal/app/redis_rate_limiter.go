package app

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counters live under <prefix>:{<user>}:<scope>:<window start ms>. The hash tag keeps all
// of a user's counters in one cluster slot, and each window gets a fresh key so expiry
// only has to clean up.
var windowCounterScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIREAT", KEYS[1], ARGV[1])
end
return current
`)

const windowCounterGraceMs = 1000

// RateLimiter counts attempts per scope and subject within a fixed window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope string, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// RedisRateLimiter limits submissions and withdrawal requests per user with clock-aligned
// windows shared by every replica.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "dincash:rate_limit"
	}

	return &RedisRateLimiter{
		client: client,
		prefix: trimmedPrefix,
		now:    time.Now,
	}
}

func (r *RedisRateLimiter) ConsumeRateLimit(ctx context.Context, scope string, subject string, limit int, window time.Duration) (int, int, error) {
	if r == nil || r.client == nil || limit <= 0 || window <= 0 {
		return 0, 0, nil
	}

	scope = strings.TrimSpace(scope)
	subject = strings.TrimSpace(subject)
	if scope == "" || subject == "" {
		return 0, 0, nil
	}

	start, end := windowBounds(r.now(), window)
	count, err := windowCounterScript.Run(ctx, r.client, []string{r.key(scope, subject, start)}, end+windowCounterGraceMs).Int64()
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit %s: %w", scope, err)
	}

	return int(count), retryAfterFromMillis(end - r.now().UnixMilli()), nil
}

// windowBounds returns the start and end, in Unix milliseconds, of the window containing
// now. Windows shorter than a second are widened to one second.
func windowBounds(now time.Time, window time.Duration) (int64, int64) {
	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}
	start := now.UnixMilli() / windowMs * windowMs
	return start, start + windowMs
}

func (r *RedisRateLimiter) key(scope, subject string, windowStart int64) string {
	return fmt.Sprintf("%s:{%s}:%s:%d", r.prefix, subject, scope, windowStart)
}

func retryAfterFromMillis(ttlMs int64) int {
	retryAfter := int(math.Ceil(float64(ttlMs) / 1000.0))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return retryAfter
}
