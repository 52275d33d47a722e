package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const lookupRatePrefix = "rl:lookup:"

// LookupRateLimit caps user lookups per identifier per minute. The identifier
// is read from the email or phone query parameter, falling back to the client
// IP. Without Redis, or when Redis fails, requests pass through.
func LookupRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 30
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		subject := strings.ToLower(strings.TrimSpace(c.Query("email")))
		if subject == "" {
			subject = strings.TrimSpace(c.Query("phone"))
		}
		if subject == "" {
			subject = c.IP()
		}

		ctx := c.UserContext()
		key := lookupRatePrefix + subject
		cnt, err := cache.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("lookup rate limit unavailable", slog.Any("error", err))
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(ctx, key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many lookups, try again later")
		}
		return c.Next()
	}
}
