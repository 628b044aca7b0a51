// Package errors defines the structured error taxonomy shared by the data
// access layer, the alpha algebra and the expression evaluator. Every error
// carries a stable code plus enough detail (offending names, column lists,
// row counts) for the caller to act on without parsing message strings.
package errors

import (
	"errors"
	"fmt"
)

// Code classifies an error for programmatic handling.
type Code string

const (
	CodeColumnMismatch     Code = "COLUMN_MISMATCH"
	CodeDateMismatch       Code = "DATE_MISMATCH"
	CodeFieldNotFound      Code = "FIELD_NOT_FOUND"
	CodeSessionNotActive   Code = "SESSION_NOT_ACTIVE"
	CodeParse              Code = "PARSE_ERROR"
	CodeRejectedExpression Code = "REJECTED_EXPRESSION"
	CodeUnboundVariable    Code = "UNBOUND_VARIABLE"
	CodeNotFound           Code = "NOT_FOUND"
	CodeTransient          Code = "TRANSIENT_ERROR"
)

// DomainError is the concrete error type raised by the core packages.
type DomainError struct {
	Code    Code        `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	wrapped error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *DomainError) Unwrap() error {
	return e.wrapped
}

// HasCode reports whether err is (or wraps) a DomainError with the given code.
func HasCode(err error, code Code) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// ColumnMismatchDetails carries both column lists of a failed alignment check.
type ColumnMismatchDetails struct {
	Left  []string `json:"left"`
	Right []string `json:"right"`
}

// ColumnMismatch is raised when two wide tables disagree on column identity
// or order.
func ColumnMismatch(left, right []string) *DomainError {
	return &DomainError{
		Code:    CodeColumnMismatch,
		Message: fmt.Sprintf("column sets differ: %d columns vs %d columns", len(left), len(right)),
		Details: ColumnMismatchDetails{Left: left, Right: right},
	}
}

// DateMismatchDetails carries both row counts of a failed alignment check.
type DateMismatchDetails struct {
	LeftRows  int `json:"left_rows"`
	RightRows int `json:"right_rows"`
}

// DateMismatch is raised when two wide tables have different row counts.
func DateMismatch(leftRows, rightRows int) *DomainError {
	return &DomainError{
		Code:    CodeDateMismatch,
		Message: fmt.Sprintf("row counts differ: %d vs %d", leftRows, rightRows),
		Details: DateMismatchDetails{LeftRows: leftRows, RightRows: rightRows},
	}
}

// FieldNotFound is raised when a session field name resolves to no alias.
func FieldNotFound(name string) *DomainError {
	return &DomainError{
		Code:    CodeFieldNotFound,
		Message: fmt.Sprintf("unknown field %q", name),
		Details: name,
	}
}

// SessionNotActive is raised on any field access outside an active session
// scope.
func SessionNotActive() *DomainError {
	return &DomainError{
		Code:    CodeSessionNotActive,
		Message: "session is not active",
	}
}

// Parse is raised on an expression syntax error, preserving the original
// message.
func Parse(msg string) *DomainError {
	return &DomainError{
		Code:    CodeParse,
		Message: msg,
	}
}

// RejectedExpression is raised when an expression uses a syntactic construct
// outside the restricted grammar. kind names the offending node.
func RejectedExpression(kind string) *DomainError {
	return &DomainError{
		Code:    CodeRejectedExpression,
		Message: fmt.Sprintf("disallowed construct: %s", kind),
		Details: kind,
	}
}

// UnboundVariable is raised when an expression references a name with no
// binding.
func UnboundVariable(name string) *DomainError {
	return &DomainError{
		Code:    CodeUnboundVariable,
		Message: fmt.Sprintf("unbound variable %q", name),
		Details: name,
	}
}

// NotFound marks expected absence surfaced as an error by the storage layer,
// e.g. a missing object key.
func NotFound(resource, key string) *DomainError {
	return &DomainError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, key),
		Details: key,
	}
}

// IsNotFound reports whether err represents expected absence.
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// Transient wraps a storage failure that survived the gateway's own retries.
// It is fatal for the specific fetch that triggered it, not for the session.
func Transient(op, path string, cause error) *DomainError {
	return &DomainError{
		Code:    CodeTransient,
		Message: fmt.Sprintf("%s %s failed", op, path),
		Details: path,
		wrapped: cause,
	}
}
