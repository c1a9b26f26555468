package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestLimiter_DisabledOutsideProduction(t *testing.T) {
	for _, env := range []string{"", "development", "test", "stress"} {
		l := NewLimiter(nil, env)
		assert.False(t, l.Enforcing(), env)
		d, err := l.Allow(context.Background(), Limit{Name: "signup", Max: 1, Window: time.Minute}, "ip:1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	assert.True(t, NewLimiter(nil, "production").Enforcing())
}

func TestLimiter_NoStore(t *testing.T) {
	_, err := NewLimiter(nil, "production").Allow(context.Background(), Limit{Name: "x", Max: 1, Window: time.Minute}, "ip:1")
	assert.ErrorIs(t, err, ErrNoLimitStore)
}

func TestLimiter_FixedWindow(t *testing.T) {
	mr, rdb := newMiniredis(t)
	l := NewLimiter(rdb, "production")
	lim := Limit{Name: "login", Max: 2, Window: time.Minute}
	ctx := context.Background()

	d, err := l.Allow(ctx, lim, "ip:1")
	require.NoError(t, err)
	assert.Equal(t, Decision{Allowed: true, Remaining: 1}, d)

	d, err = l.Allow(ctx, lim, "ip:1")
	require.NoError(t, err)
	assert.Equal(t, 0, d.Remaining)
	assert.True(t, d.Allowed)

	d, err = l.Allow(ctx, lim, "ip:1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Positive(t, d.RetryAfter)
	assert.Equal(t, time.Minute, mr.TTL("rl:login:ip:1"))

	// other callers have their own counter
	d, err = l.Allow(ctx, lim, "ip:2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	mr.FastForward(time.Minute + time.Second)
	d, err = l.Allow(ctx, lim, "ip:1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestLimiter_Handler(t *testing.T) {
	_, rdb := newMiniredis(t)
	l := NewLimiter(rdb, "production")

	app := fiber.New()
	app.Get("/limited", l.Handler(Limit{Name: "limited", Max: 1, Window: time.Minute}), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/limited", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", resp.Header.Get("X-RateLimit-Remaining"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/limited", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestLimiter_HandlerFailurePolicy(t *testing.T) {
	l := NewLimiter(nil, "production")

	app := fiber.New()
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }
	app.Get("/closed", l.Handler(Limit{Name: "closed", Max: 1, Window: time.Minute, FailClosed: true}), ok)
	app.Get("/open", l.Handler(Limit{Name: "open", Max: 1, Window: time.Minute}), ok)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/closed", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/open", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
