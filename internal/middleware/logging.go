// Package middleware provides the Fiber middleware stack: structured logging,
// metrics, tracing and Redis-backed rate limiting.
package middleware

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Logger is the process-wide structured logger. Call sites log with the
// request context so the correlation attributes below are attached.
var Logger = NewLogger(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"), os.Stdout)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	UserIDKey    contextKey = "user_id"
	TraceIDKey   contextKey = "trace_id"
)

// correlationKeys lists the context values copied onto every record.
var correlationKeys = []contextKey{RequestIDKey, UserIDKey, TraceIDKey}

type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, k := range correlationKeys {
		if v := ctx.Value(k); v != nil {
			r.AddAttrs(slog.Any(string(k), v))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

// NewLogger writes JSON in production and text elsewhere. level is one of
// debug, info, warn or error; anything else means info.
func NewLogger(env, level string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var base slog.Handler = slog.NewTextHandler(w, opts)
	if env == "production" || env == "prod" {
		base = slog.NewJSONHandler(w, opts)
	}
	return slog.New(contextHandler{base})
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// WithUserID returns ctx annotated with the authenticated user id for logging.
func WithUserID(ctx context.Context, userID uint) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// ContextMiddleware moves the request and trace ids from Fiber locals into
// the user context. The auth middleware adds the user id later.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		if rid, ok := c.Locals("requestid").(string); ok {
			ctx = context.WithValue(ctx, RequestIDKey, rid)
		}
		if tid, ok := c.Locals("traceID").(string); ok {
			ctx = context.WithValue(ctx, TraceIDKey, tid)
		}
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// quietPaths are probed often enough that logging them drowns everything else.
var quietPaths = map[string]bool{
	"/health":       true,
	"/health/live":  true,
	"/health/ready": true,
	"/metrics":      true,
}

// StructuredLogger writes one record per request. Client errors log at warn
// and server errors at error.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		if quietPaths[c.Path()] && err == nil {
			return nil
		}

		status := c.Response().StatusCode()
		attrs := []slog.Attr{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.IP()),
		}
		if ua := c.Get(fiber.HeaderUserAgent); ua != "" {
			attrs = append(attrs, slog.String("user_agent", ua))
		}

		lvl, msg := slog.LevelInfo, "request"
		switch {
		case err != nil:
			attrs = append(attrs, slog.String("error", err.Error()))
			lvl, msg = slog.LevelError, "request failed"
		case status >= fiber.StatusInternalServerError:
			lvl, msg = slog.LevelError, "request failed"
		case status >= fiber.StatusBadRequest:
			lvl = slog.LevelWarn
		}
		Logger.LogAttrs(c.UserContext(), lvl, msg, attrs...)
		return err
	}
}
