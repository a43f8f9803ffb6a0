// Package core provides the building blocks of the ormx persistence layer.
// This file defines the typed errors surfaced by field codecs and the
// dict/message import helpers.
package core

import (
	"errors"
	"fmt"
)

// InvalidValueError is returned when a value cannot be persisted through a
// field codec, for example a non-temporal value or an offset-less timestamp
// written through the timezone-safe datetime codec.
type InvalidValueError struct {
	Field  string // database column name, may be empty for bare codec calls
	Reason string
}

func (e *InvalidValueError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// UnknownFieldError is returned by strict UpdateFromDict and strict ToMessage
// conversions when the input carries a key the target schema does not know.
// Permissive mode downgrades it to a silent skip.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q", e.Field)
}

// IsInvalidValue reports whether err is (or wraps) an InvalidValueError.
func IsInvalidValue(err error) bool {
	var target *InvalidValueError
	return errors.As(err, &target)
}

// IsUnknownField reports whether err is (or wraps) an UnknownFieldError.
func IsUnknownField(err error) bool {
	var target *UnknownFieldError
	return errors.As(err, &target)
}
