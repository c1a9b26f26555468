package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_AttachesCorrelationIDs(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("production", "debug", &buf)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = WithUserID(ctx, 9)
	log.DebugContext(ctx, "hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "req-1", rec["request_id"])
	assert.EqualValues(t, 9, rec["user_id"])
	assert.NotContains(t, rec, "trace_id")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel(" ERROR "))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
	assert.Equal(t, slog.LevelInfo, parseLevel("loud"))
}

func TestStructuredLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	prev := Logger
	Logger = NewLogger("production", "info", &buf)
	t.Cleanup(func() { Logger = prev })

	app := fiber.New()
	app.Use(StructuredLogger())
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/missing", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNotFound) })

	_, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Zero(t, buf.Len())

	_, err = app.Test(httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.EqualValues(t, 404, rec["status"])
	assert.Equal(t, "/missing", rec["path"])
}
