// Package apcerrors provides the runtime's error taxonomy: a tagged set of
// failure kinds with structured detail payloads, timestamps, and wrapping.
package apcerrors

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies a failure category raised anywhere in the runtime.
type Kind string

const (
	KindModuleNotFound       Kind = "ModuleNotFound"
	KindInvalidInput         Kind = "InvalidInput"
	KindModuleLoadError      Kind = "ModuleLoadError"
	KindCircularDependency   Kind = "CircularDependency"
	KindSchemaNotFound       Kind = "SchemaNotFound"
	KindSchemaParseError     Kind = "SchemaParseError"
	KindSchemaCircularRef    Kind = "SchemaCircularRef"
	KindSchemaValidationErr  Kind = "SchemaValidationError"
	KindACLDenied            Kind = "ACLDenied"
	KindApprovalDenied       Kind = "ApprovalDenied"
	KindApprovalTimeout      Kind = "ApprovalTimeout"
	KindApprovalPending      Kind = "ApprovalPending"
	KindCallDepthExceeded    Kind = "CallDepthExceeded"
	KindCallFrequencyExceed  Kind = "CallFrequencyExceeded"
	KindCircularCall         Kind = "CircularCall"
	KindMiddlewareChainError Kind = "MiddlewareChainError"
	KindBindingFileInvalid   Kind = "BindingFileInvalid"
	KindBindingInvalidTarget Kind = "BindingInvalidTarget"
	KindBindingModuleNotFn   Kind = "BindingModuleNotFound"
	KindBindingCallableNotFn Kind = "BindingCallableNotFound"
	KindBindingNotCallable   Kind = "BindingNotCallable"
	KindConfigError          Kind = "ConfigError"
	KindConfigNotFound       Kind = "ConfigNotFound"
)

// Error is the runtime's structured error type. Every failure kind listed in
// the taxonomy is carried by one of these, distinguished by Kind.
type Error struct {
	Kind      Kind
	Message   string
	Details   map[string]any
	Timestamp time.Time
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail attaches a structured detail key/value and returns the
// receiver, so construction can be chained.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Timestamp: time.Now()}
}

// Wrap constructs an Error of the given kind around an existing cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Timestamp: time.Now(), Err: cause}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind carried by err, or "" if err is not a tagged
// runtime error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func ModuleNotFound(moduleID string) *Error {
	return New(KindModuleNotFound, fmt.Sprintf("module %q not found", moduleID)).WithDetail("module_id", moduleID)
}

func InvalidInput(message string) *Error {
	return New(KindInvalidInput, message)
}

func ModuleLoadError(message string, cause error) *Error {
	if cause == nil {
		return New(KindModuleLoadError, message)
	}
	return Wrap(KindModuleLoadError, message, cause)
}

// CircularDependency reports a dependency cycle; path's first and last
// elements are the same module id.
func CircularDependency(path []string) *Error {
	return New(KindCircularDependency, "circular dependency detected").WithDetail("path", path)
}

func SchemaNotFound(moduleID string) *Error {
	return New(KindSchemaNotFound, fmt.Sprintf("schema not found for %q", moduleID)).WithDetail("module_id", moduleID)
}

func SchemaParseError(message string, cause error) *Error {
	return Wrap(KindSchemaParseError, message, cause)
}

func SchemaCircularRef(ref string) *Error {
	return New(KindSchemaCircularRef, fmt.Sprintf("circular $ref detected at %q", ref)).WithDetail("ref", ref)
}

// ValidationIssue is one structured entry in a SchemaValidationError.
type ValidationIssue struct {
	Path       string `json:"path"`
	Message    string `json:"message"`
	Constraint string `json:"constraint"`
	Expected   any    `json:"expected,omitempty"`
	Actual     any    `json:"actual,omitempty"`
}

func SchemaValidationError(issues []ValidationIssue) *Error {
	return New(KindSchemaValidationErr, "schema validation failed").WithDetail("issues", issues)
}

func ACLDenied(caller, target string) *Error {
	return New(KindACLDenied, fmt.Sprintf("caller %q denied access to %q", caller, target)).
		WithDetail("caller", caller).WithDetail("target", target)
}

func ApprovalDenied(moduleID string) *Error {
	return New(KindApprovalDenied, fmt.Sprintf("approval denied for %q", moduleID)).WithDetail("module_id", moduleID)
}

func ApprovalTimeout(moduleID string) *Error {
	return New(KindApprovalTimeout, fmt.Sprintf("approval timed out for %q", moduleID)).WithDetail("module_id", moduleID)
}

func ApprovalPending(moduleID, approvalID string) *Error {
	return New(KindApprovalPending, fmt.Sprintf("approval pending for %q", moduleID)).
		WithDetail("module_id", moduleID).WithDetail("approval_id", approvalID)
}

func CallDepthExceeded(moduleID string, depth, max int) *Error {
	return New(KindCallDepthExceeded, fmt.Sprintf("call depth %d exceeds max %d", depth, max)).
		WithDetail("module_id", moduleID).WithDetail("depth", depth).WithDetail("max", max)
}

func CallFrequencyExceeded(moduleID string, count, max int) *Error {
	return New(KindCallFrequencyExceed, fmt.Sprintf("module %q repeated %d times, exceeds max %d", moduleID, count, max)).
		WithDetail("module_id", moduleID).WithDetail("count", count).WithDetail("max", max)
}

func CircularCall(moduleID string) *Error {
	return New(KindCircularCall, fmt.Sprintf("circular call detected at %q", moduleID)).WithDetail("module_id", moduleID)
}

// MiddlewareChainError wraps a before-hook failure together with the list
// of middlewares that had already run, so onError can unwind exactly them.
func MiddlewareChainError(original error, executed []string) *Error {
	return Wrap(KindMiddlewareChainError, "middleware chain failed", original).WithDetail("executed", executed)
}

func BindingFileInvalid(path string, cause error) *Error {
	return Wrap(KindBindingFileInvalid, fmt.Sprintf("invalid binding file %q", path), cause).WithDetail("path", path)
}

func BindingInvalidTarget(target string) *Error {
	return New(KindBindingInvalidTarget, fmt.Sprintf("invalid binding target %q", target)).WithDetail("target", target)
}

func BindingModuleNotFound(path string, cause error) *Error {
	return Wrap(KindBindingModuleNotFn, fmt.Sprintf("binding module %q not found", path), cause).WithDetail("path", path)
}

func BindingCallableNotFound(target string) *Error {
	return New(KindBindingCallableNotFn, fmt.Sprintf("callable %q not found", target)).WithDetail("target", target)
}

func BindingNotCallable(target string) *Error {
	return New(KindBindingNotCallable, fmt.Sprintf("target %q is not callable", target)).WithDetail("target", target)
}

func ConfigError(message string, cause error) *Error {
	return Wrap(KindConfigError, message, cause)
}

func ConfigNotFound(path string) *Error {
	return New(KindConfigNotFound, fmt.Sprintf("config not found at %q", path)).WithDetail("path", path)
}
