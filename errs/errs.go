// Package errs classifies the failures that cross component boundaries so
// that HTTP handlers and the webhook path can decide what to surface.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindInvalidAmount
	KindNotFound
	KindConflict
	KindDiscountConflict
	KindRemoteRejected
	KindRemoteUnreachable
	KindMalformedPayload
	KindAmountUnavailable
	KindUnresolved
	KindDebitFailed
	KindUnauthorized
)

var kindNames = map[Kind]string{
	KindInternal:          "Internal",
	KindInvalidInput:      "InvalidInput",
	KindInvalidAmount:     "InvalidAmount",
	KindNotFound:          "NotFound",
	KindConflict:          "Conflict",
	KindDiscountConflict:  "DiscountConflict",
	KindRemoteRejected:    "RemoteRejected",
	KindRemoteUnreachable: "RemoteUnreachable",
	KindMalformedPayload:  "MalformedPayload",
	KindAmountUnavailable: "AmountUnavailable",
	KindUnresolved:        "Unresolved",
	KindDebitFailed:       "DebitFailed",
	KindUnauthorized:      "Unauthorized",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the single error type returned across package boundaries.
// StatusCode is only set for RemoteRejected and carries the upstream status.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s (%d): %s: %v", e.Kind, e.StatusCode, e.Message, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, errs.ErrNotFound) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrInvalidAmount     = &Error{Kind: KindInvalidAmount}
	ErrDiscountConflict  = &Error{Kind: KindDiscountConflict}
	ErrRemoteUnreachable = &Error{Kind: KindRemoteUnreachable}
	ErrRemoteRejected    = &Error{Kind: KindRemoteRejected}
	ErrMalformedPayload  = &Error{Kind: KindMalformedPayload}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
)

func InvalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func InvalidAmount(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidAmount, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func DiscountConflict(format string, args ...any) *Error {
	return &Error{Kind: KindDiscountConflict, Message: fmt.Sprintf(format, args...)}
}

func RemoteRejected(status int, message string) *Error {
	return &Error{Kind: KindRemoteRejected, StatusCode: status, Message: message}
}

func RemoteUnreachable(message string, err error) *Error {
	return &Error{Kind: KindRemoteUnreachable, Message: message, Err: err}
}

func MalformedPayload(message string, err error) *Error {
	return &Error{Kind: KindMalformedPayload, Message: message, Err: err}
}

func AmountUnavailable(format string, args ...any) *Error {
	return &Error{Kind: KindAmountUnavailable, Message: fmt.Sprintf(format, args...)}
}

func Unresolved(message string, err error) *Error {
	return &Error{Kind: KindUnresolved, Message: message, Err: err}
}

func DebitFailed(message string, err error) *Error {
	return &Error{Kind: KindDebitFailed, Message: message, Err: err}
}

func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error to the status a synchronous handler should return.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}

	switch e.Kind {
	case KindInvalidInput, KindInvalidAmount, KindMalformedPayload:
		return http.StatusBadRequest
	case KindNotFound, KindUnresolved:
		return http.StatusNotFound
	case KindConflict, KindDiscountConflict:
		return http.StatusConflict
	case KindRemoteRejected:
		if e.StatusCode >= 400 && e.StatusCode <= 599 {
			return e.StatusCode
		}
		return http.StatusBadGateway
	case KindRemoteUnreachable:
		return http.StatusServiceUnavailable
	case KindAmountUnavailable, KindDebitFailed:
		return http.StatusUnprocessableEntity
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the human readable part of err without the kind prefix.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
