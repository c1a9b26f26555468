package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var requests atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "tok", "user": map[string]any{"id": 1, "username": "alice"}})
	})
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "Unauthorized", "message": "Authorization required"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 1, "username": "alice", "email": "alice@example.com"})
	})
	mux.HandleFunc("GET /api/posts/feed", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"posts": []map[string]any{
				{"id": 2, "content": "second", "user": map[string]any{"username": "bob"}, "likesCount": 1},
				{"id": 1, "content": "first", "user": map[string]any{"username": "alice"}},
			},
			"nextCursor": nil,
			"hasMore":    false,
		})
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func setupEnv(t *testing.T, srv *httptest.Server) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("VIBELY_API_URL", srv.URL+"/api")
	t.Setenv("VIBELY_TOKEN_FILE", filepath.Join(home, "credentials.yml"))
	t.Chdir(home)
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(""), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCLI_LoginThenMe(t *testing.T) {
	srv, _ := newFakeServer(t)
	setupEnv(t, srv)

	code, _, stderr := runCLI("me")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Authorization required")

	code, stdout, _ := runCLI("login", "-email", "alice@example.com", "-password", "password123")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Logged in as @alice")

	code, stdout, _ = runCLI("me")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "@alice")
	assert.Contains(t, stdout, "alice@example.com")
}

func TestCLI_Feed(t *testing.T) {
	srv, _ := newFakeServer(t)
	setupEnv(t, srv)

	code, stdout, _ := runCLI("feed", "-more", "3")
	require.Equal(t, 0, code)
	assert.Less(t, strings.Index(stdout, "#2 @bob"), strings.Index(stdout, "#1 @alice"))
	assert.Contains(t, stdout, "-- end of feed --")
}

func TestCLI_ValidationNeverReachesServer(t *testing.T) {
	srv, requests := newFakeServer(t)
	setupEnv(t, srv)

	code, _, stderr := runCLI("post", strings.Repeat("a", 381))
	assert.Equal(t, 1, code)
	assert.NotEmpty(t, stderr)

	code, _, _ = runCLI("username", "AB")
	assert.Equal(t, 1, code)

	code, _, _ = runCLI("chat", "nope")
	assert.Equal(t, 1, code)

	assert.Zero(t, requests.Load())
}

func TestCLI_Usage(t *testing.T) {
	code, _, stderr := runCLI()
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "usage: vibely")

	srv, _ := newFakeServer(t)
	setupEnv(t, srv)
	code, _, stderr = runCLI("dance")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, `unknown command "dance"`)
}
