package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"vibely/internal/validation"
)

// AuthAPI wraps /auth.
type AuthAPI struct {
	c *Client
}

// SignupInput is the signup form.
type SignupInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// Signup registers an account and stores the returned token.
func (a *AuthAPI) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	in.Username = validation.NormalizeUsername(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, validationError(errors.New("username, email, and password are required"))
	}
	if err := validation.ValidateUsername(in.Username); err != nil {
		return nil, validationError(err)
	}
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, validationError(err)
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, validationError(err)
	}

	var out AuthResult
	if err := a.c.do(ctx, http.MethodPost, "auth/signup", nil, in, &out, "Failed to sign up"); err != nil {
		return nil, err
	}
	if err := a.c.store.Set(out.Token); err != nil {
		return nil, &Error{Kind: KindUnexpected, Message: "Failed to save session", Err: err}
	}
	return &out, nil
}

// Login exchanges credentials for a token and stores it.
func (a *AuthAPI) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, validationError(errors.New("email and password are required"))
	}

	var out AuthResult
	body := map[string]string{"email": email, "password": password}
	if err := a.c.do(ctx, http.MethodPost, "auth/login", nil, body, &out, "Failed to log in"); err != nil {
		return nil, err
	}
	if err := a.c.store.Set(out.Token); err != nil {
		return nil, &Error{Kind: KindUnexpected, Message: "Failed to save session", Err: err}
	}
	return &out, nil
}

// Logout revokes the token on the server and clears it locally. The local
// token is cleared even when the server cannot be reached.
func (a *AuthAPI) Logout(ctx context.Context) error {
	token, err := a.c.store.Get()
	if err != nil {
		return &Error{Kind: KindUnexpected, Message: "Failed to read session", Err: err}
	}
	var callErr error
	if token != "" {
		callErr = a.c.do(ctx, http.MethodPost, "auth/logout", nil, nil, nil, "Failed to log out")
	}
	if err := a.c.store.Clear(); err != nil {
		return &Error{Kind: KindUnexpected, Message: "Failed to clear session", Err: err}
	}
	// An already revoked or expired token means the session is gone anyway.
	if IsStatus(callErr, http.StatusUnauthorized) {
		return nil
	}
	return callErr
}

// Me returns the signed in user.
func (a *AuthAPI) Me(ctx context.Context) (*User, error) {
	var out User
	if err := a.c.do(ctx, http.MethodGet, "auth/me", nil, nil, &out, "Failed to load profile"); err != nil {
		return nil, err
	}
	return &out, nil
}

// WSTicket requests a one-shot websocket ticket.
func (a *AuthAPI) WSTicket(ctx context.Context) (string, error) {
	var out struct {
		Ticket string `json:"ticket"`
	}
	if err := a.c.do(ctx, http.MethodPost, "ws/ticket", nil, nil, &out, "Failed to open realtime session"); err != nil {
		return "", err
	}
	return out.Ticket, nil
}
