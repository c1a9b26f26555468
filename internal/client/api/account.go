package api

import (
	"context"
	"errors"
	"net/http"

	"vibely/internal/validation"
)

// AccountAPI wraps /account.
type AccountAPI struct {
	c *Client
}

// UpdateUsername normalizes and validates username before changing it.
func (a *AccountAPI) UpdateUsername(ctx context.Context, username string) (*User, error) {
	username = validation.NormalizeUsername(username)
	if err := validation.ValidateUsername(username); err != nil {
		return nil, validationError(err)
	}
	return a.update(ctx, map[string]string{"username": username})
}

// UpdateProfile changes the display name and avatar URL. Empty values are left
// untouched.
func (a *AccountAPI) UpdateProfile(ctx context.Context, name, avatar string) (*User, error) {
	body := map[string]string{}
	if name != "" {
		if err := validation.ValidateName(name); err != nil {
			return nil, validationError(err)
		}
		body["name"] = name
	}
	if avatar != "" {
		body["avatar"] = avatar
	}
	if len(body) == 0 {
		return nil, validationError(errors.New("nothing to update"))
	}
	return a.update(ctx, body)
}

func (a *AccountAPI) update(ctx context.Context, body map[string]string) (*User, error) {
	var out struct {
		User *User `json:"user"`
	}
	if err := a.c.do(ctx, http.MethodPut, "account/update", nil, body, &out, "Failed to update account"); err != nil {
		return nil, err
	}
	return out.User, nil
}
