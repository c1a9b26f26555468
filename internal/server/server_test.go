package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"vibely/internal/cache"
	"vibely/internal/config"
	"vibely/internal/database"
	"vibely/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		JWTSecret:         "test-secret-test-secret-test-secret",
		Port:              "0",
		FeedPageSize:      5,
		ChatSnapshotLimit: 200,
		ImageUploadDir:    t.TempDir(),
		ImageHostKey:      "host-key",
		PublicBaseURL:     "http://media.test",
	}
}

// newTestServer builds a Server on an in-memory database. With withRedis the
// server and the cache package share one miniredis instance.
func newTestServer(t *testing.T, withRedis bool) (*Server, *fiber.App, *miniredis.Miniredis) {
	t.Helper()

	db, err := database.OpenInMemory()
	require.NoError(t, err)

	var (
		mr  *miniredis.Miniredis
		rdb *redis.Client
	)
	if withRedis {
		mr = miniredis.RunT(t)
		rdb = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	}
	cache.SetClient(rdb)
	t.Cleanup(func() {
		cache.SetClient(nil)
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	s, err := NewServerWithDeps(testConfig(t), db, rdb)
	require.NoError(t, err)

	app := fiber.New()
	s.SetupRoutes(app)
	return s, app, mr
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp, out
}

// signup registers a user through the API and returns its token and id.
func signup(t *testing.T, app *fiber.App, username string) (string, uint) {
	t.Helper()
	resp, body := doJSON(t, app, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
		"name":     "Test " + username,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	user := body["user"].(map[string]any)
	return body["token"].(string), uint(user["id"].(float64))
}

func TestReadinessCheck(t *testing.T) {
	t.Run("healthy with redis", func(t *testing.T) {
		_, app, _ := newTestServer(t, true)
		resp, body := doJSON(t, app, http.MethodGet, "/health/ready", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("degraded without redis", func(t *testing.T) {
		_, app, _ := newTestServer(t, false)
		resp, body := doJSON(t, app, http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "degraded", body["status"])
	})

	t.Run("redis down", func(t *testing.T) {
		_, app, mr := newTestServer(t, true)
		mr.Close()
		resp, body := doJSON(t, app, http.MethodGet, "/health/ready", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "unhealthy", body["status"])
	})
}

func TestLivenessCheck(t *testing.T) {
	_, app, _ := newTestServer(t, false)
	resp, body := doJSON(t, app, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "up", body["status"])
}

func TestErrorResponseShape(t *testing.T) {
	_, app, _ := newTestServer(t, false)
	resp, body := doJSON(t, app, http.MethodGet, "/api/posts/999", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, models.CodeNotFound, body["code"])
	assert.Equal(t, body["error"], body["message"])
	assert.NotEmpty(t, body["message"])
}
