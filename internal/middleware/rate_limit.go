package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// LoginRateLimit limits login attempts per account name or IP using Redis if
// available.
func LoginRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		var req struct {
			Name string `json:"name"`
		}
		_ = c.BodyParser(&req)
		subject := strings.TrimSpace(req.Name)
		if subject == "" {
			subject = c.IP()
		}
		if !allow(c.UserContext(), cache, "rl:login:"+subject, maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many login attempts, try again later")
		}
		return c.Next()
	}
}

// ClaimRateLimit limits income claims per authenticated account. It must run
// after JWTAuth.
func ClaimRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 10
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		subject := Account(c)
		if subject == "" {
			subject = c.IP()
		}
		if !allow(c.UserContext(), cache, "rl:claim:"+subject, maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many claims, try again later")
		}
		return c.Next()
	}
}

// allow counts a hit in a one minute window. Cache errors fail open.
func allow(ctx context.Context, cache *redis.Client, key string, maxPerMin int) bool {
	cnt, err := cache.Incr(ctx, key).Result()
	if err != nil {
		return true
	}
	if cnt == 1 {
		cache.Expire(ctx, key, time.Minute)
	}
	return cnt <= int64(maxPerMin)
}
