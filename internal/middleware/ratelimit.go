package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"slotswap/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

var errNoRedis = errors.New("rate limit store not configured")

// Quota is a fixed-window request budget for one named route.
type Quota struct {
	Name   string
	Max    int
	Window time.Duration
	// FailClosed rejects with 503 when the counter store cannot be reached.
	// The default lets the request through.
	FailClosed bool
	// Disabled turns the quota into a pass-through, used outside production.
	Disabled bool
}

func (q Quota) key(caller string) string {
	return "rl:" + q.Name + ":" + caller
}

// Allow counts one hit for caller and reports whether it fits in the current
// window. The window starts on the first hit and is not extended by later ones.
func (q Quota) Allow(ctx context.Context, rdb *redis.Client, caller string) (bool, error) {
	if q.Disabled {
		return true, nil
	}
	if rdb == nil {
		return false, errNoRedis
	}

	key := q.key(caller)
	hits, err := rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if hits == 1 {
		if err := rdb.Expire(ctx, key, q.Window).Err(); err != nil {
			return false, err
		}
	}
	return hits <= int64(q.Max), nil
}

// callerKey buckets authenticated callers by user id and everyone else by IP.
func callerKey(c *fiber.Ctx) string {
	if uid, ok := c.Locals("userID").(uint); ok && uid != 0 {
		return "user:" + strconv.FormatUint(uint64(uid), 10)
	}
	return "ip:" + c.IP()
}

// RateLimit enforces q on every request that reaches it.
func RateLimit(rdb *redis.Client, q Quota) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		allowed, err := q.Allow(ctx, rdb, callerKey(c))
		switch {
		case err != nil && q.FailClosed:
			Logger.WarnContext(ctx, "rate limit store unavailable",
				slog.String("quota", q.Name),
				slog.String("error", err.Error()),
			)
			return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
				Error: "Rate limiting is unavailable, try again shortly",
				Code:  models.CodeInternal,
			})
		case err != nil:
			return c.Next()
		case !allowed:
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(q.Window.Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later.",
				Code:  models.CodeRateLimited,
			})
		}
		return c.Next()
	}
}
