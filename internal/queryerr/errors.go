// Package queryerr defines the error taxonomy shared by the planner, the
// compiled-predicate cache and the query builder.
package queryerr

import (
	"errors"
	"fmt"
)

// Error is a structured query error.
//
// Query errors fall into three classes:
//   - Unsupported expression: a predicate or projection shape the planner
//     cannot process at all (raised at build time)
//   - Configuration misuse: builder invariants or capability mismatches,
//     raised at the offending call
//   - Compile failure: the compiled-predicate cache could not produce a
//     callable for an expression that passed classification
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Expr is the rendered expression the error refers to, if any.
	Expr string

	// Err is the underlying cause, if any.
	Err error
}

// Code categorizes query errors.
type Code string

const (
	// CodeUnsupportedExpression indicates a predicate node the planner cannot analyze.
	CodeUnsupportedExpression Code = "UNSUPPORTED_EXPRESSION"

	// CodeUnsupportedProjection indicates a projection that touches no fields.
	CodeUnsupportedProjection Code = "UNSUPPORTED_PROJECTION"

	// CodeMultipleTransformations indicates a second Select on one builder.
	CodeMultipleTransformations Code = "MULTIPLE_TRANSFORMATIONS"

	// CodeInvalidArgument indicates a rejected argument such as Take(0).
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// CodeConfigMisuse indicates a strategy that needs a capability the store lacks.
	CodeConfigMisuse Code = "CONFIG_MISUSE"

	// CodeBuilderFrozen indicates mutation of a builder after Build.
	CodeBuilderFrozen Code = "BUILDER_FROZEN"

	// CodeAlreadyConsumed indicates a second enumeration of one query.
	CodeAlreadyConsumed Code = "ALREADY_CONSUMED"

	// CodeCompileFailed indicates the predicate compiler rejected an expression.
	CodeCompileFailed Code = "COMPILE_FAILED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Expr != "" {
		msg += fmt.Sprintf(" (expr=%s)", e.Expr)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that wraps err.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithExpr returns a copy of e that records the offending expression.
func (e *Error) WithExpr(expr string) *Error {
	cp := *e
	cp.Expr = expr
	return &cp
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Code
	}
	return ""
}

// IsUnsupportedExpression returns true if err is an unsupported-expression error.
func IsUnsupportedExpression(err error) bool {
	return CodeOf(err) == CodeUnsupportedExpression
}

// IsConfigMisuse returns true for every configuration-misuse class error:
// capability mismatches and builder invariant violations.
func IsConfigMisuse(err error) bool {
	switch CodeOf(err) {
	case CodeConfigMisuse, CodeUnsupportedProjection, CodeMultipleTransformations,
		CodeBuilderFrozen, CodeAlreadyConsumed:
		return true
	}
	return false
}

// IsCompileError returns true if err is a predicate compile failure.
func IsCompileError(err error) bool {
	return CodeOf(err) == CodeCompileFailed
}

// IsInvalidArgument returns true if err is an invalid-argument error.
func IsInvalidArgument(err error) bool {
	return CodeOf(err) == CodeInvalidArgument
}
