package provider

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provider failures independently of the backend.
type ErrorKind string

const (
	KindAuth         ErrorKind = "Auth"
	KindNotFound     ErrorKind = "NotFound"
	KindRateLimited  ErrorKind = "RateLimited"
	KindUnavailable  ErrorKind = "Unavailable"
	KindInvalidState ErrorKind = "InvalidState"
	KindOther        ErrorKind = "Other"
)

// Error wraps a backend failure with its classification.
type Error struct {
	Kind       ErrorKind
	Op         string
	InstanceID string
	Err        error
}

func (e *Error) Error() string {
	if e.InstanceID != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.InstanceID, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an *Error.
func NewError(kind ErrorKind, op, instanceID string, err error) *Error {
	return &Error{Kind: kind, Op: op, InstanceID: instanceID, Err: err}
}

// KindOf returns the classification of err, or "" when err is not a provider error.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsKind reports whether err is a provider error of kind.
func IsKind(err error, kind ErrorKind) bool { return KindOf(err) == kind }

// IsRetryable returns true for transient failures (RateLimited, Unavailable).
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindUnavailable:
		return true
	default:
		return false
	}
}
