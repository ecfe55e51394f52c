package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// Redis keys for the request stats served by the health endpoint.
const (
	KeyReqTotal  = "health:global:req_total"
	KeyReqErrors = "health:global:req_errors"
	KeyResTime   = "health:global:res_time_total"
	KeyResCount  = "health:global:res_count"
	KeyStartTime = "health:global:start_time"
)

// HealthMarker records request stats in Redis (skips / and /health*).
func HealthMarker(rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if rdb == nil || path == "/" || strings.HasPrefix(path, "/health") || strings.HasPrefix(path, "/favicon") {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		ctx := context.Background()
		rdb.Incr(ctx, KeyReqTotal)
		rdb.IncrBy(ctx, KeyResTime, time.Since(start).Milliseconds())
		rdb.Incr(ctx, KeyResCount)
		if err != nil || c.Response().StatusCode() >= 500 {
			rdb.Incr(ctx, KeyReqErrors)
		}
		return err
	}
}
