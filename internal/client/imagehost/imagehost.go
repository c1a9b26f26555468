// Package imagehost uploads images to an imgbb compatible host: the Vibely
// server's /api/images/upload or imgbb itself.
package imagehost

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vibely/internal/client/api"
)

const uploadFailed = "Failed to upload image"

// MaxUploadBytes caps the raw image size before encoding.
const MaxUploadBytes = 10 << 20

// Image is the part of the host's "data" object the app uses.
type Image struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	DisplayURL string `json:"display_url"`
	WebPURL    string `json:"webp_url,omitempty"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

type uploadResponse struct {
	Data    *Image `json:"data"`
	Success bool   `json:"success"`
	Status  int    `json:"status"`
}

// Client uploads to one endpoint with one API key.
type Client struct {
	endpoint string
	key      string
	http     *http.Client
	// Token, when set, adds a bearer token; the Vibely host accepts it in
	// place of a key.
	Token func() (string, error)
}

// New returns a client for endpoint, e.g. https://api.imgbb.com/1/upload.
func New(endpoint, key string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("imagehost: invalid endpoint %q", endpoint)
	}
	if timeout <= 0 {
		timeout = api.DefaultTimeout
	}
	return &Client{endpoint: endpoint, key: key, http: &http.Client{Timeout: timeout}}, nil
}

// Upload sends data base64 encoded in the multipart field "image" and returns
// the hosted URL.
func (c *Client) Upload(ctx context.Context, data []byte) (string, error) {
	img, err := c.UploadImage(ctx, data)
	if err != nil {
		return "", err
	}
	return img.URL, nil
}

// UploadImage is Upload returning the whole data object.
func (c *Client) UploadImage(ctx context.Context, data []byte) (*Image, error) {
	switch {
	case len(data) == 0:
		return nil, &api.Error{Kind: api.KindValidation, Message: "Image is empty"}
	case len(data) > MaxUploadBytes:
		return nil, &api.Error{Kind: api.KindValidation, Message: "Image is too large"}
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("image", base64.StdEncoding.EncodeToString(data)); err != nil {
		return nil, &api.Error{Kind: api.KindUnexpected, Message: uploadFailed, Err: err}
	}
	if err := mw.Close(); err != nil {
		return nil, &api.Error{Kind: api.KindUnexpected, Message: uploadFailed, Err: err}
	}

	u, _ := url.Parse(c.endpoint)
	if c.key != "" {
		q := u.Query()
		q.Set("key", c.key)
		u.RawQuery = q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), &body)
	if err != nil {
		return nil, &api.Error{Kind: api.KindUnexpected, Message: uploadFailed, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if c.Token != nil {
		if token, err := c.Token(); err == nil && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &api.Error{Kind: api.KindNetwork, Message: api.NetworkMessage, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &api.Error{Kind: api.KindNetwork, Status: resp.StatusCode, Message: api.NetworkMessage, Err: err}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg := errorMessage(raw)
		return nil, &api.Error{Kind: api.KindServer, Status: resp.StatusCode, Message: msg, Err: errors.New(msg)}
	}

	var out uploadResponse
	if err := json.Unmarshal(raw, &out); err != nil || out.Data == nil || out.Data.URL == "" {
		if err == nil {
			err = errors.New("response has no data.url")
		}
		return nil, &api.Error{Kind: api.KindUnexpected, Status: resp.StatusCode, Message: api.UnexpectedMessage, Err: err}
	}
	return out.Data, nil
}

// errorMessage reads both the Vibely envelope {message, error} and imgbb's
// {error: {message}}.
func errorMessage(raw []byte) string {
	var body struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return uploadFailed
	}
	if strings.TrimSpace(body.Message) != "" {
		return body.Message
	}
	var nested struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body.Error, &nested) == nil && nested.Message != "" {
		return nested.Message
	}
	var flat string
	if json.Unmarshal(body.Error, &flat) == nil && flat != "" {
		return flat
	}
	return uploadFailed
}
