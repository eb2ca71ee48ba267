package models

import (
	"errors"
	"fmt"
)

// ErrorMessageResponse returns the error message response struct
type ErrorMessageResponse struct {
	Response MessageError
}

// MessageError contains the inner details for the error message response
type MessageError struct {
	Message string
	Error   string
}

// Kind is the category of a workflow error. Kinds are comparable with
// errors.Is, so callers can test errors.Is(err, models.ErrForbidden).
type Kind string

// Error kinds surfaced by the lifecycle engine and visibility service
const (
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindInvalidTransition Kind = "invalid_transition"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindAlreadyProcessed  Kind = "already_processed"
	KindLocationRequired  Kind = "location_required"
	KindBadRequest        Kind = "bad_request"
)

// Sentinels for errors.Is
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrAlreadyProcessed  = &Error{Kind: KindAlreadyProcessed}
	ErrLocationRequired  = &Error{Kind: KindLocationRequired}
	ErrBadRequest        = &Error{Kind: KindBadRequest}
)

// Error is a typed workflow error. Message explains why the operation failed
// in terms the acting user is allowed to see.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Errorf builds an *Error of the given kind
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or "" when err is not a workflow error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
