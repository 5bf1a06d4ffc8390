// Package apperr defines the typed errors returned by the expense ledger services.
//
// Every error carries a stable Kind that callers can check with errors.Is against
// the package sentinels, plus a human-readable message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine-checkable category of an error.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindAuthorization    Kind = "authorization"
	KindLedgerUpdate     Kind = "ledger_update"
	KindInvalidOrExpired Kind = "invalid_or_expired_request"
	KindUnauthenticated  Kind = "unauthenticated"
	KindConflict         Kind = "conflict"
	KindUpstream         Kind = "upstream"
	KindInternal         Kind = "internal"
)

// Sentinels for errors.Is. Matching is by Kind only.
var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrAuthorization    = &Error{Kind: KindAuthorization}
	ErrLedgerUpdate     = &Error{Kind: KindLedgerUpdate}
	ErrInvalidOrExpired = &Error{Kind: KindInvalidOrExpired}
	ErrUnauthenticated  = &Error{Kind: KindUnauthenticated}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrUpstream         = &Error{Kind: KindUpstream}
)

// Error is a typed application error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Authorization(msg string) error {
	return &Error{Kind: KindAuthorization, Message: msg}
}

func InvalidOrExpired(msg string) error {
	return &Error{Kind: KindInvalidOrExpired, Message: msg}
}

func Unauthenticated(msg string) error {
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Upstream wraps a failure talking to a third-party service.
func Upstream(msg string, err error) error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

// LedgerUpdate wraps the cause of an aborted ledger unit of work. Errors that
// already carry a validation or not-found kind are returned unchanged.
func LedgerUpdate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) {
		return err
	}
	return &Error{Kind: KindLedgerUpdate, Message: "ledger update failed", Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the human-readable message of err's *Error, or a generic text.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal server error"
}

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindInvalidOrExpired:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
