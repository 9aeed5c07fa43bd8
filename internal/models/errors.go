package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the machine-readable classification carried on every failure
// that crosses a service or client boundary.
type ErrorKind string

const (
	KindUnauthenticated   ErrorKind = "unauthenticated"
	KindForbidden         ErrorKind = "forbidden"
	KindNotFound          ErrorKind = "not_found"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindInvalidDateRange  ErrorKind = "invalid_date_range"
	KindUnavailable       ErrorKind = "unavailable"
	KindConflict          ErrorKind = "conflict"
	KindNoPaymentURL      ErrorKind = "no_payment_url"
	KindNetwork           ErrorKind = "network_error"
	KindTimeout           ErrorKind = "timeout"
	KindInvalidRequest    ErrorKind = "invalid_request"
	KindInternal          ErrorKind = "internal"
)

var knownKinds = map[ErrorKind]bool{
	KindUnauthenticated:   true,
	KindForbidden:         true,
	KindNotFound:          true,
	KindInvalidTransition: true,
	KindInvalidDateRange:  true,
	KindUnavailable:       true,
	KindConflict:          true,
	KindNoPaymentURL:      true,
	KindNetwork:           true,
	KindTimeout:           true,
	KindInvalidRequest:    true,
	KindInternal:          true,
}

// ParseErrorKind maps a wire code back to a kind. Unknown codes are internal.
func ParseErrorKind(code string) ErrorKind {
	k := ErrorKind(code)
	if knownKinds[k] {
		return k
	}
	return KindInternal
}

func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInvalidTransition:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusUnprocessableEntity
	case KindInvalidDateRange, KindInvalidRequest:
		return http.StatusBadRequest
	case KindNoPaymentURL, KindNetwork:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether a manual retry of the same request may succeed.
func (k ErrorKind) Retryable() bool {
	return k == KindNetwork || k == KindTimeout
}

type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, &Error{Kind: KindNotFound}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// UserMessage is the human-readable text for notifications.
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WrapError(kind ErrorKind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Classified reports whether err already carries a kind.
func Classified(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// AsError normalizes any error into an *Error, keeping the original in the chain.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Message: err.Error(), Err: err}
}
