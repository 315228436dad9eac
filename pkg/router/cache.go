package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cache"
)

func HttpCacheInMemory(ttl int) fiber.Handler {
	if ttl <= 0 {
		ttl = 5
	}
	return cache.New(cache.Config{
		Next: func(c *fiber.Ctx) bool {
			// QR payloads rotate and session status must reflect the live
			// connection; caching either serves stale state.
			return c.Method() != fiber.MethodGet ||
				strings.Contains(c.Path(), "qr-code") ||
				strings.Contains(c.Path(), "status")
		},
		Expiration: time.Duration(ttl) * time.Second,
	})
}
