// Package errors provides structured error types for fsm.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI and the HTTP API
//   - Machine-readable error codes for programmatic handling
//   - Errors that always name the package identities they implicate
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Resolution-time codes (INDEX_CONFLICT, CYCLE_DETECTED, UNSATISFIABLE,
// CONFLICT, DEPENDENTS_EXIST) are recoverable by adjusting the request.
// Transaction-time codes split into STEP_FAILED (recovered by rollback) and
// ROLLBACK_FAILED (fatal: the system is left in a documented partial state).
//
// # Usage
//
//	err := errors.New(errors.ErrCodeUnsatisfiable, "no package provides %q", name).
//		WithPackages("rpm:emacs@core")
//	if errors.Is(err, errors.ErrCodeUnsatisfiable) {
//	    // Handle resolution failure
//	}
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different failure categories.
const (
	// Resolution-time errors. All are pure: nothing has been applied when
	// one of these is returned.
	ErrCodeIndexConflict   Code = "INDEX_CONFLICT"   // contradictory source data for one package
	ErrCodeCycle           Code = "CYCLE_DETECTED"   // dependency cycle reachable from a request
	ErrCodeUnsatisfiable   Code = "UNSATISFIABLE"    // no concrete package satisfies a constraint
	ErrCodeConflict        Code = "CONFLICT"         // two packages in the closure conflict
	ErrCodeDependentsExist Code = "DEPENDENTS_EXIST" // removal would strand installed dependents

	// Transaction-time errors.
	ErrCodeStepFailed     Code = "STEP_FAILED"     // a backend apply call failed; rollback ran
	ErrCodeRollbackFailed Code = "ROLLBACK_FAILED" // an undo step failed; operator intervention needed

	// Input and environment errors.
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidManifest Code = "INVALID_MANIFEST"
	ErrCodeNotFound        Code = "NOT_FOUND"
	ErrCodeTimeout         Code = "TIMEOUT"
	ErrCodeUnsupported     Code = "UNSUPPORTED"
	ErrCodeInternal        Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code, the implicated package identities,
// and an optional cause. Every user-visible failure in fsm names the packages
// involved; a bare "operation failed" is never surfaced.
type Error struct {
	Code     Code     // Machine-readable error code
	Message  string   // Human-readable message
	Packages []string // Canonical ids of the packages implicated, in order
	Cause    error    // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Packages) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Packages, ", "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithPackages records the canonical ids implicated by the error.
// It returns the receiver for chaining and preserves the given order,
// which is meaningful for cycles (cycle order) and dependent lists.
func (e *Error) WithPackages(ids ...string) *Error {
	e.Packages = append(e.Packages, ids...)
	return e
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// As delegates to the standard library's errors.As, so callers can target
// concrete error types without importing both packages.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ImplicatedPackages extracts the package ids carried by an error chain.
// Returns nil if no *Error with packages is found.
func ImplicatedPackages(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Packages
	}
	return nil
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if len(e.Packages) > 0 {
			return fmt.Sprintf("%s (%s)", e.Message, strings.Join(e.Packages, ", "))
		}
		return e.Message
	}
	return err.Error()
}

// Resolution reports whether the code names a resolution-time failure,
// i.e. one that is recoverable by the caller adjusting the request.
func Resolution(code Code) bool {
	switch code {
	case ErrCodeIndexConflict, ErrCodeCycle, ErrCodeUnsatisfiable,
		ErrCodeConflict, ErrCodeDependentsExist:
		return true
	}
	return false
}
