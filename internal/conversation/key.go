// Package conversation derives the identifier shared by the two participants of
// a direct-message thread. Both the server and the client SDK use it, so the
// key computed on either side is always the same string.
package conversation

import (
	"errors"
	"strconv"
	"strings"
)

// Separator joins the two participant ids.
const Separator = "_"

// ErrInvalidKey is returned for keys that are not "<lowId>_<highId>".
var ErrInvalidKey = errors.New("invalid conversation key")

// Key returns the deterministic key for a pair of users: the ids sorted
// ascending and joined with "_". Key(a, b) == Key(b, a).
func Key(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return strconv.FormatUint(uint64(a), 10) + Separator + strconv.FormatUint(uint64(b), 10)
}

// Parse splits a key into its two participant ids. It only accepts the
// canonical form produced by Key, with two distinct positive ids.
func Parse(key string) (low, high uint, err error) {
	left, right, ok := strings.Cut(key, Separator)
	if !ok {
		return 0, 0, ErrInvalidKey
	}
	a, err := parseID(left)
	if err != nil {
		return 0, 0, ErrInvalidKey
	}
	b, err := parseID(right)
	if err != nil {
		return 0, 0, ErrInvalidKey
	}
	if a >= b || Key(a, b) != key {
		return 0, 0, ErrInvalidKey
	}
	return a, b, nil
}

// Other returns the participant of key that is not me.
func Other(key string, me uint) (uint, error) {
	a, b, err := Parse(key)
	if err != nil {
		return 0, err
	}
	switch me {
	case a:
		return b, nil
	case b:
		return a, nil
	}
	return 0, ErrNotParticipant
}

// ErrNotParticipant is returned when a user is not one of the key's two ids.
var ErrNotParticipant = errors.New("user is not a participant of this conversation")

func parseID(s string) (uint, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 {
		return 0, ErrInvalidKey
	}
	return uint(n), nil
}
