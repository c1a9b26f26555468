package api

import (
	"errors"
	"fmt"
)

// Kind classifies why a call failed.
type Kind int

const (
	// KindValidation means input was rejected locally; no request was sent.
	KindValidation Kind = iota + 1
	// KindServer means the server answered with a 4xx or 5xx status.
	KindServer
	// KindNetwork means no response arrived.
	KindNetwork
	// KindUnexpected covers everything else, such as undecodable bodies.
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	case KindNetwork:
		return "network"
	case KindUnexpected:
		return "unexpected"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// NetworkMessage is shown when the server could not be reached.
const NetworkMessage = "No response from server. Check your internet connection."

// UnexpectedMessage is the fallback when nothing more specific is known.
const UnexpectedMessage = "An unexpected error occurred"

// Error is the normalized error every client call returns. Message is meant to
// be shown to the user as is.
type Error struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsStatus reports whether err is a server error with the given HTTP status.
func IsStatus(err error, status int) bool {
	apiErr, ok := AsError(err)
	return ok && apiErr.Kind == KindServer && apiErr.Status == status
}

func validationError(err error) *Error {
	return &Error{Kind: KindValidation, Message: err.Error(), Err: err}
}
