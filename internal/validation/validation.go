// Package validation provides input validation utilities shared by the API
// server and the client SDK. Client code runs these before any network call.
package validation

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxPostChars is the character limit for posts and comments.
	MaxPostChars = 380
	// MaxChatChars bounds a single chat message.
	MaxChatChars = 1000
	// MaxNameChars bounds the display name.
	MaxNameChars = 50
	// MinPasswordLength is the shortest accepted password.
	MinPasswordLength = 6
)

var usernameRegex = regexp.MustCompile(`^[a-z0-9_]{3,20}$`)

var (
	ErrEmptyText     = errors.New("text cannot be empty")
	ErrEmptyPost     = errors.New("write something or attach an image")
	ErrPostTooLong   = fmt.Errorf("posts are limited to %d characters", MaxPostChars)
	ErrInvalidEmail  = errors.New("invalid email address")
	ErrShortPassword = fmt.Errorf("password must be at least %d characters long", MinPasswordLength)
)

// NormalizeUsername trims surrounding whitespace and lowercases the handle.
func NormalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// ValidateUsername accepts exactly 3-20 lowercase letters, digits or underscores.
func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username must be 3-20 characters and contain only lowercase letters, numbers, and underscores")
	}
	return nil
}

// CharCount counts characters the way a text field does, not bytes.
func CharCount(s string) int {
	return utf8.RuneCountInString(s)
}

// RemainingChars reports how many characters are left before the post limit.
// The result is negative once the limit is exceeded.
func RemainingChars(content string) int {
	return MaxPostChars - CharCount(content)
}

// CanPost reports whether a post with this body may be submitted.
func CanPost(content string, hasImage bool) error {
	if CharCount(content) > MaxPostChars {
		return ErrPostTooLong
	}
	if strings.TrimSpace(content) == "" && !hasImage {
		return ErrEmptyPost
	}
	return nil
}

// ValidateText rejects blank input.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	return nil
}

// ValidateComment checks a comment body against the post limit.
func ValidateComment(content string) error {
	if err := ValidateText(content); err != nil {
		return err
	}
	if CharCount(content) > MaxPostChars {
		return fmt.Errorf("comments are limited to %d characters", MaxPostChars)
	}
	return nil
}

// ValidateChatText checks a chat message body.
func ValidateChatText(text string) error {
	if err := ValidateText(text); err != nil {
		return err
	}
	if CharCount(text) > MaxChatChars {
		return fmt.Errorf("messages are limited to %d characters", MaxChatChars)
	}
	return nil
}

// ValidateName checks the display name. An empty name is allowed.
func ValidateName(name string) error {
	if CharCount(name) > MaxNameChars {
		return fmt.Errorf("name must not exceed %d characters", MaxNameChars)
	}
	return nil
}

// ValidateEmail checks the address parses and carries no display name.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}

// ValidatePassword enforces the minimum length accepted at signup.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrShortPassword
	}
	if len(password) > 128 {
		return fmt.Errorf("password must not exceed 128 characters")
	}
	return nil
}
