// Package errors provides structured error types for evidctl.
package errors

import (
	"fmt"
	"strings"
)

// ErrorCode identifies specific error conditions
type ErrorCode string

const (
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeParse           ErrorCode = "PARSE_ERROR"
	ErrCodeUnknownNode     ErrorCode = "UNKNOWN_NODE"
	ErrCodeUnknownOutput   ErrorCode = "UNKNOWN_OUTPUT"
	ErrCodeCycle           ErrorCode = "DEPENDENCY_CYCLE"
	ErrCodeVariantConflict ErrorCode = "VARIANT_CONFLICT"
	ErrCodeCondition       ErrorCode = "CONDITION_ERROR"
	ErrCodeUnresolvedRef   ErrorCode = "UNRESOLVED_REFERENCE"
	ErrCodeProvider        ErrorCode = "PROVIDER_ERROR"
	ErrCodeBackend         ErrorCode = "BACKEND_ERROR"
	ErrCodeLocked          ErrorCode = "JOURNAL_LOCKED"
	ErrCodeSecret          ErrorCode = "SECRET_ERROR"
	ErrCodeParams          ErrorCode = "PARAMETER_ERROR"
	ErrCodeCancelled       ErrorCode = "RUN_CANCELLED"
)

// Error is the base error type for evidctl
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Wrap creates a new error wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
		Details: make(map[string]interface{}),
	}
}

// WithDetail adds a single detail to an error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	e.Details[key] = value
	return e
}

// ValidationError creates a validation error
func ValidationError(message string, details map[string]interface{}) *Error {
	return &Error{
		Code:    ErrCodeValidation,
		Message: message,
		Details: details,
	}
}

// NotFoundError creates a not found error
func NotFoundError(kind, name string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %q not found", kind, name),
		Details: map[string]interface{}{
			"kind": kind,
			"name": name,
		},
	}
}

// ParseError creates a parse error
func ParseError(filePath string, err error) *Error {
	return &Error{
		Code:    ErrCodeParse,
		Message: fmt.Sprintf("failed to parse %s", filePath),
		Cause:   err,
		Details: map[string]interface{}{
			"file": filePath,
		},
	}
}

// ProviderError creates an error for a failed provider apply call.
func ProviderError(provider, nodeID string, err error) *Error {
	return &Error{
		Code:    ErrCodeProvider,
		Message: fmt.Sprintf("provider %s failed applying %s", provider, nodeID),
		Cause:   err,
		Details: map[string]interface{}{
			"provider": provider,
			"node":     nodeID,
		},
	}
}

// BackendError creates a journal backend error
func BackendError(backend string, operation string, err error) *Error {
	return &Error{
		Code:    ErrCodeBackend,
		Message: fmt.Sprintf("backend %s failed during %s", backend, operation),
		Cause:   err,
		Details: map[string]interface{}{
			"backend":   backend,
			"operation": operation,
		},
	}
}

// Is reports whether any error in err's tree carries the given code.
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok && e.Code == code {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return Is(u.Unwrap(), code)
	case interface{ Unwrap() []error }:
		for _, child := range u.Unwrap() {
			if Is(child, code) {
				return true
			}
		}
	}
	return false
}

// List accumulates configuration errors so a single validation pass can
// report every problem instead of stopping at the first one.
type List struct {
	errs []error
}

// Append adds an error to the list. Nil errors are ignored.
func (l *List) Append(errs ...error) {
	for _, err := range errs {
		if err != nil {
			l.errs = append(l.errs, err)
		}
	}
}

// Errors returns the accumulated errors.
func (l *List) Errors() []error {
	return l.errs
}

// HasErrors reports whether any errors were accumulated.
func (l *List) HasErrors() bool {
	return len(l.errs) > 0
}

// Err returns the list as a single error, or nil if the list is empty.
func (l *List) Err() error {
	if len(l.errs) == 0 {
		return nil
	}
	return &aggregateError{errs: l.errs}
}

type aggregateError struct {
	errs []error
}

func (a *aggregateError) Error() string {
	if len(a.errs) == 1 {
		return a.errs[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d configuration errors:", len(a.errs))
	for _, err := range a.errs {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (a *aggregateError) Unwrap() []error {
	return a.errs
}
