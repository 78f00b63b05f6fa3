package security

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

const scanRateWindow = time.Minute

type RateLimiter struct {
	redis  redis.Cmdable
	limit  int
	window time.Duration
}

// NewRateLimiter allows limit requests per scanner per minute.
func NewRateLimiter(redisClient redis.Cmdable, limit int) *RateLimiter {
	return &RateLimiter{redis: redisClient, limit: limit, window: scanRateWindow}
}

// scanCountScript increments the window counter and sets its TTL in one
// step. A counter found without a TTL gets one, so a key can never outlive
// its window. ARGV[1] is the window in milliseconds.
const scanCountScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 or redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`

// Allow counts one request for identity in the current window.
func (r *RateLimiter) Allow(ctx context.Context, identity string) (bool, error) {
	key := fmt.Sprintf("ratelimit:scan:%s", identity)

	count, err := r.redis.Eval(ctx, scanCountScript, []string{key}, strconv.FormatInt(r.window.Milliseconds(), 10)).Int64()
	if err != nil {
		return true, err
	}
	return count <= int64(r.limit), nil
}

// ScanRateLimit limits scan requests per authenticated scanner, or per IP
// when unauthenticated. Redis errors let the request through: a gate must
// keep admitting when the limiter is down.
func (r *RateLimiter) ScanRateLimit() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		allowed, err := r.Allow(e.Request.Context(), scannerIdentity(e))
		if err != nil {
			slog.Warn("scan rate limiter unavailable", "error", err)
			return e.Next()
		}
		if !allowed {
			return e.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}
		return e.Next()
	}
}

// RejectSuspiciousAgents blocks crawler user agents from scan routes.
func RejectSuspiciousAgents() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
			return e.JSON(http.StatusForbidden, map[string]string{
				"error": "Access denied",
			})
		}
		return e.Next()
	}
}

func scannerIdentity(e *core.RequestEvent) string {
	if e.Auth != nil {
		return "user:" + e.Auth.Id
	}
	return "ip:" + e.RealIP()
}

func isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
