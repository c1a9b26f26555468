package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// ErrNoLimitStore is returned when counting is attempted without Redis.
var ErrNoLimitStore = errors.New("rate limit store not configured")

// Limit is a fixed-window quota on one named action.
type Limit struct {
	Name   string
	Max    int
	Window time.Duration
	// FailClosed rejects requests with 503 while Redis is unreachable instead
	// of letting them through.
	FailClosed bool
}

// Decision is the outcome of counting one request against a Limit.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts requests in Redis, one key per action and caller.
type Limiter struct {
	rdb      *redis.Client
	disabled bool
}

// NewLimiter returns a Limiter backed by rdb. Quotas are not enforced for the
// development, test and stress environments (an empty env counts as
// development).
func NewLimiter(rdb *redis.Client, env string) *Limiter {
	switch env {
	case "", "development", "test", "stress":
		return &Limiter{rdb: rdb, disabled: true}
	}
	return &Limiter{rdb: rdb}
}

// Enforcing reports whether quotas are applied at all.
func (l *Limiter) Enforcing() bool {
	return !l.disabled
}

// Allow counts one request by subject against lim.
func (l *Limiter) Allow(ctx context.Context, lim Limit, subject string) (Decision, error) {
	if l.disabled {
		return Decision{Allowed: true, Remaining: lim.Max}, nil
	}
	if l.rdb == nil {
		return Decision{}, ErrNoLimitStore
	}

	key := "rl:" + lim.Name + ":" + subject
	var (
		count *redis.IntCmd
		ttl   *redis.DurationCmd
	)
	_, err := l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		count = p.Incr(ctx, key)
		ttl = p.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return Decision{}, err
	}

	left := ttl.Val()
	if left < 0 {
		// first hit in this window, or a counter that lost its expiry
		l.rdb.PExpire(ctx, key, lim.Window)
		left = lim.Window
	}

	n := int(count.Val())
	if n > lim.Max {
		return Decision{RetryAfter: left}, nil
	}
	return Decision{Allowed: true, Remaining: lim.Max - n}, nil
}

// Handler enforces lim per authenticated user, or per client IP for
// anonymous requests. Quota headers are set on every counted response.
func (l *Limiter) Handler(lim Limit) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if l.disabled {
			return c.Next()
		}

		subject := "ip:" + c.IP()
		if uid, ok := c.Locals("userID").(uint); ok {
			subject = "user:" + strconv.FormatUint(uint64(uid), 10)
		}

		d, err := l.Allow(c.UserContext(), lim, subject)
		if err != nil {
			if !lim.FailClosed {
				return c.Next()
			}
			Logger.WarnContext(c.UserContext(), "rate limit store unavailable",
				slog.String("limit", lim.Name), slog.String("error", err.Error()))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":   "rate limit unavailable",
				"message": "Service temporarily unavailable, please try again.",
			})
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(lim.Max))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			RateLimited.WithLabelValues(lim.Name).Inc()
			secs := int(d.RetryAfter.Round(time.Second) / time.Second)
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(max(secs, 1)))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate limit exceeded",
				"message": "Too many requests, please slow down.",
			})
		}
		return c.Next()
	}
}
