package imagehost

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vibely/internal/client/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpload(t *testing.T) {
	payload := []byte("\x89PNG fake image bytes")
	var gotKey, gotImage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		gotImage = r.FormValue("image")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"abc","url":"https://i.example/abc.jpg","display_url":"https://i.example/abc.jpg"},"success":true,"status":200}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL+"/1/upload", "secret", time.Second)
	require.NoError(t, err)
	url, err := c.Upload(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, "https://i.example/abc.jpg", url)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, base64.StdEncoding.EncodeToString(payload), gotImage)
}

func TestUpload_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    api.Kind
		message string
	}{
		{"imgbb error", http.StatusBadRequest, `{"status_code":400,"error":{"message":"Invalid API v1 key.","code":100}}`, api.KindServer, "Invalid API v1 key."},
		{"vibely error", http.StatusUnauthorized, `{"error":"Unauthorized","message":"Authorization required"}`, api.KindServer, "Authorization required"},
		{"html", http.StatusBadGateway, `<html></html>`, api.KindServer, "Failed to upload image"},
		{"missing url", http.StatusOK, `{"data":{},"success":true}`, api.KindUnexpected, api.UnexpectedMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := New(srv.URL, "k", time.Second)
			require.NoError(t, err)
			_, err = c.Upload(context.Background(), []byte("img"))
			apiErr, ok := api.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, apiErr.Kind)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestUpload_ValidationAndBearer(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"data":{"url":"http://h/x.jpg"},"success":true,"status":200}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, "", time.Second)
	require.NoError(t, err)
	c.Token = func() (string, error) { return "tok", nil }

	_, err = c.Upload(context.Background(), nil)
	apiErr, ok := api.AsError(err)
	require.True(t, ok)
	assert.Equal(t, api.KindValidation, apiErr.Kind)

	_, err = c.Upload(context.Background(), []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", auth)

	_, err = New("not a url", "", 0)
	assert.Error(t, err)
}
