package chat

import (
	"errors"
	"fmt"
)

// Error kinds. Every client-facing failure wraps exactly one of them.
var (
	ErrValidation    = errors.New("validation error")
	ErrAuthorization = errors.New("authorization error")
	ErrNotFound      = errors.New("not found")
)

// Error carries the human-readable message sent back to the originating
// connection in an error event.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

func validationErr(format string, args ...any) error {
	return &Error{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

func authorizationErr(format string, args ...any) error {
	return &Error{kind: ErrAuthorization, msg: fmt.Sprintf(format, args...)}
}

func notFoundErr(format string, args ...any) error {
	return &Error{kind: ErrNotFound, msg: fmt.Sprintf(format, args...)}
}

// clientMessage hides unexpected internal errors from the client.
func clientMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.msg
	}
	return "internal error"
}
