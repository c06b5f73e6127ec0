package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Validation failure codes.
var (
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidRate     = errors.New("invalid commission rate")
	ErrInvalidSupplier = errors.New("invalid supplier category")
)

// Gateway failure codes.
var (
	ErrUnavailable      = errors.New("gateway unavailable")
	ErrPermissionDenied = errors.New("gateway permission denied")
	ErrTimeout          = errors.New("gateway timeout")
)

// ErrDuplicateParty is returned when a master-data entry already exists.
var ErrDuplicateParty = errors.New("already registered")

// ErrUnrecognizedCommand is returned for command tokens outside the command table.
var ErrUnrecognizedCommand = errors.New("unrecognized command")

// ValidationError reports a single field that failed validation.
// It is always recovered by re-prompting for the same field.
type ValidationError struct {
	Field Field
	Code  error // one of ErrInvalidCategory, ErrInvalidAmount, ErrInvalidDate
	Input string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Field, e.Input, e.Code)
}

func (e *ValidationError) Unwrap() error { return e.Code }

// IncompleteError is returned by Finalize when required fields are unset.
type IncompleteError struct {
	Kind    Kind
	Missing []Field
}

func (e *IncompleteError) Error() string {
	names := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		names[i] = string(f)
	}
	return fmt.Sprintf("%s record incomplete: missing %s", e.Kind, strings.Join(names, ", "))
}

// GatewayError wraps a failed call to an external store.
type GatewayError struct {
	Op   string
	Code error // one of ErrUnavailable, ErrPermissionDenied, ErrTimeout
	Err  error
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Code, e.Err)
}

// Unwrap exposes both the code and the underlying cause to errors.Is.
func (e *GatewayError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Code}
	}
	return []error{e.Code, e.Err}
}

// IsGatewayError reports whether err carries a GatewayError.
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}
