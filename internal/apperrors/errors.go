// Package apperrors defines the error taxonomy shared by every component.
// Each error carries a Kind that maps onto the handler's exit contract: a
// malformed event is the caller's fault (4xx), everything else that aborts
// an invocation surfaces as a retryable 5xx.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and status mapping.
type Kind string

const (
	// KindMalformedEvent covers events missing detail-type or with an
	// unrecognised structure below a known source.
	KindMalformedEvent Kind = "malformed_event"
	// KindConfigInvalid covers mapping-file parse and validation failures.
	KindConfigInvalid Kind = "config_invalid"
	// KindCredentialFailure covers assume-role denials and expiries.
	KindCredentialFailure Kind = "credential_failure"
	// KindPolicyLoad covers missing or malformed policy files.
	KindPolicyLoad Kind = "policy_load"
	// KindPolicyExecution covers failures during filter or action execution.
	KindPolicyExecution Kind = "policy_execution"
	// KindDeadlineExceeded marks policies skipped because the invocation
	// budget ran out.
	KindDeadlineExceeded Kind = "deadline_exceeded"
	// KindNotificationRender covers template failures during drain.
	KindNotificationRender Kind = "notification_render"
	// KindInternal is the catch-all for unexpected failures.
	KindInternal Kind = "internal"
)

// Error is a structured error with a Kind and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New creates an Error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error wrapping a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Kind so callers can test errors.Is(err, apperrors.New(kind, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// StatusCode maps an error onto the handler exit contract. Malformed events
// are not retryable; everything else that aborts the invocation is.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindMalformedEvent:
		return 400
	default:
		return 500
	}
}
