// Package cache holds the shared Redis client and the cache-aside helpers
// built on it. Every helper is a no-op or a pass-through while no client is
// installed, so the API keeps working without Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vibely/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

var client *redis.Client

// errorCounter counts failed commands by name. redis.Nil is a miss, not a
// failure.
type errorCounter struct{}

func (errorCounter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (errorCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		countFailure(cmd.Name(), err)
		return err
	}
}

func (errorCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		countFailure("pipeline", err)
		return err
	}
}

func countFailure(command string, err error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		middleware.RedisErrors.WithLabelValues(command).Inc()
	}
}

// Connect opens a client for addr, given either as host:port or as a
// redis:// URL, and pings it once.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}

	c := redis.NewClient(opts)
	c.AddHook(errorCounter{})

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// InitRedis connects to addr and installs the client. An empty address or an
// unreachable server leaves caching off.
func InitRedis(addr string) {
	client = nil
	if addr == "" {
		return
	}
	c, err := Connect(context.Background(), addr)
	if err != nil {
		middleware.Logger.Warn("redis unavailable, continuing without cache", "addr", addr, "error", err)
		return
	}
	middleware.Logger.Info("redis connected", "addr", addr)
	client = c
}

// SetClient installs an already connected client; nil turns caching off.
func SetClient(c *redis.Client) {
	if c != nil {
		c.AddHook(errorCounter{})
	}
	client = c
}

// GetClient returns the installed client, or nil.
func GetClient() *redis.Client {
	return client
}
