// Package apperr holds the typed failures every domain operation returns, so
// the HTTP boundary can map them to a status code without guessing.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	Unexpected Kind = iota
	Unauthenticated
	Validation
	NotFound
	Forbidden
	Conflict
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	case Conflict:
		return "conflict"
	default:
		return "unexpected"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or Unexpected.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Unexpected
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage is what a caller may see. Unexpected failures never leak
// their cause.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != Unexpected {
		return appErr.Message
	}
	return "Something went wrong"
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case Unauthenticated:
		return http.StatusUnauthorized
	case Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// KindForStatus is the inverse of HTTPStatus, used by clients of the API.
func KindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized:
		return Unauthenticated
	case http.StatusBadRequest:
		return Validation
	case http.StatusNotFound:
		return NotFound
	case http.StatusForbidden:
		return Forbidden
	case http.StatusConflict:
		return Conflict
	default:
		return Unexpected
	}
}
