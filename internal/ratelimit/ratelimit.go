// Package ratelimit builds per-route fixed-window limiters on top of Fiber's
// limiter middleware, answering rejected requests with the API's JSON errors.
package ratelimit

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// Config configures one limited route.
type Config struct {
	// Action namespaces the storage keys, so limiters can share a Storage.
	Action string
	// Max requests per Window for one caller.
	Max    int
	Window time.Duration
	// Key identifies the caller. An empty key lets the request through
	// without counting it.
	Key func(c *fiber.Ctx) string
	// Storage holds the counters. Nil uses the limiter's in-memory store.
	Storage fiber.Storage
	// OnLimited runs for every rejected request.
	OnLimited func(c *fiber.Ctx)
}

// PerMinute returns cfg limited to n requests a minute.
func PerMinute(cfg Config, n int) Config {
	cfg.Max = n
	cfg.Window = time.Minute
	return cfg
}

// StorageKey is the key a caller's counter is stored under.
func StorageKey(action, caller string) string {
	return action + ":" + caller
}

// New returns the limiter middleware. Allowed responses carry the
// X-RateLimit-* headers; rejected ones get 429, Retry-After and a
// RATE_LIMITED body.
func New(cfg Config) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:               cfg.Max,
		Expiration:        cfg.Window,
		Storage:           cfg.Storage,
		LimiterMiddleware: limiter.FixedWindow{},
		Next: func(c *fiber.Ctx) bool {
			return cfg.Key(c) == ""
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return StorageKey(cfg.Action, cfg.Key(c))
		},
		LimitReached: func(c *fiber.Ctx) error {
			if cfg.OnLimited != nil {
				cfg.OnLimited(c)
			}
			retryAfter, _ := strconv.Atoi(c.GetRespHeader(fiber.HeaderRetryAfter))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":      "Too many requests",
				"code":       "RATE_LIMITED",
				"retryAfter": retryAfter,
			})
		},
	})
}
