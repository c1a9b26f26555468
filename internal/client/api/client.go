// Package api is the HTTP client for the Vibely REST API. One Client is shared
// by every resource wrapper and attaches the stored bearer token to each call.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vibely/internal/client/tokenstore"
)

// DefaultTimeout bounds every request unless WithTimeout overrides it.
const DefaultTimeout = 15 * time.Second

// Client talks to the API under baseURL.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	store   tokenstore.Store
	logger  *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithLogger sets where failed calls are logged.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New builds a client for baseURL, e.g. "http://localhost:8375/api".
func New(baseURL string, store tokenstore.Store, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", baseURL)
	}
	if store == nil {
		store = tokenstore.NewMemory()
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: DefaultTimeout},
		store:   store,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API root the client was built with.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Token returns the stored bearer token.
func (c *Client) Token() (string, error) {
	return c.store.Get()
}

func (c *Client) Auth() *AuthAPI       { return &AuthAPI{c: c} }
func (c *Client) Posts() *PostsAPI     { return &PostsAPI{c: c} }
func (c *Client) Actions() *ActionsAPI { return &ActionsAPI{c: c} }
func (c *Client) Inbox() *InboxAPI     { return &InboxAPI{c: c} }
func (c *Client) Search() *SearchAPI   { return &SearchAPI{c: c} }
func (c *Client) Account() *AccountAPI { return &AccountAPI{c: c} }

// errorBody is the server's error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// do sends one JSON request. fallback is the message used when a failed
// response carries none.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, fallback string) error {
	u := c.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindUnexpected, Message: fallback, Err: err}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return &Error{Kind: KindUnexpected, Message: fallback, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(req); err != nil {
		return &Error{Kind: KindUnexpected, Message: fallback, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.DebugContext(ctx, "api request failed",
			slog.String("method", method), slog.String("path", path), slog.String("error", err.Error()))
		return &Error{Kind: KindNetwork, Message: NetworkMessage, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := decodeError(resp, fallback)
		c.logger.DebugContext(ctx, "api error response",
			slog.String("method", method), slog.String("path", path),
			slog.Int("status", apiErr.Status), slog.String("message", apiErr.Message))
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindUnexpected, Status: resp.StatusCode, Message: UnexpectedMessage, Err: err}
	}
	return nil
}

// authorize attaches the bearer token when one is stored.
func (c *Client) authorize(req *http.Request) error {
	token, err := c.store.Get()
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

func decodeError(resp *http.Response, fallback string) *Error {
	apiErr := &Error{Kind: KindServer, Status: resp.StatusCode, Message: fallback}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		apiErr.Err = err
		return apiErr
	}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		apiErr.Err = fmt.Errorf("status %d", resp.StatusCode)
		return apiErr
	}

	switch {
	case strings.TrimSpace(body.Message) != "":
		apiErr.Message = body.Message
	case strings.TrimSpace(body.Error) != "":
		apiErr.Message = body.Error
	}
	apiErr.Code = body.Code
	apiErr.Err = errors.New(apiErr.Message)
	return apiErr
}
