package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// SearchAPI wraps user lookup under /inbox.
type SearchAPI struct {
	c *Client
}

// Users finds accounts whose username starts with prefix.
func (s *SearchAPI) Users(ctx context.Context, prefix string) ([]*User, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, validationError(errors.New("search text cannot be empty"))
	}
	var out struct {
		Users []*User `json:"users"`
	}
	if err := s.c.do(ctx, http.MethodGet, "inbox/"+url.PathEscape(prefix), nil, nil, &out, "Failed to search users"); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// UserByID loads one account.
func (s *SearchAPI) UserByID(ctx context.Context, id uint) (*User, error) {
	var out User
	if err := s.c.do(ctx, http.MethodGet, "inbox/users/"+idPath(id), nil, nil, &out, "Failed to load user"); err != nil {
		return nil, err
	}
	return &out, nil
}
