// Package ferrors defines the error-kind taxonomy surfaced across the engine
// (spec.md §7). Admission errors are synchronous and caller-visible;
// reconciler errors are logged/aggregated and never fatal to the loop.
package ferrors

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for callers that need to branch on it (the edge
// mapping these to its own protocol errors, for instance).
type Kind string

const (
	InvalidArgument    Kind = "InvalidArgument"
	NotFound           Kind = "NotFound"
	NotJoinable        Kind = "NotJoinable"
	NoCapacity         Kind = "NoCapacity"
	ProvisionerFailure Kind = "ProvisionerFailure"
	StoreFailure       Kind = "StoreFailure"
)

// Error is a Kind-tagged error with an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err (or any error it wraps) is tagged with kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	for errors.As(err, &fe) {
		if fe.Kind == kind {
			return true
		}
		err = fe.Cause
	}
	return false
}
