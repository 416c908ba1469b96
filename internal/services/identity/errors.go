package identity

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindServer Kind = iota
	KindValidation
	KindAlreadyExists
	KindNotFound
	KindInvalidCredential
	KindTokenMissing
	KindTokenInvalid
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAlreadyExists:
		return "already_exists"
	case KindNotFound:
		return "not_found"
	case KindInvalidCredential:
		return "invalid_credential"
	case KindTokenMissing:
		return "token_missing"
	case KindTokenInvalid:
		return "token_invalid"
	default:
		return "server"
	}
}

// Status is the HTTP status a kind is reported with.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindAlreadyExists, KindInvalidCredential:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindTokenMissing:
		return http.StatusUnauthorized
	case KindTokenInvalid:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error is the only error type the usecase returns. Message is safe to show to callers; Err is not.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// KindOf classifies any error; foreign errors are server errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindServer
}
