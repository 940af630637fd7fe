// Package errors provides the saga engine's error taxonomy.
//
// Every failure category named in the specification's error taxonomy
// (AlreadyExists, NotFound, InvalidTransition, InvalidDefinition,
// TaskFailure, CompensationFailure, PersistenceFailure, SubscriberFailure)
// is modeled as an ErrorCode carried by a single concrete type, SagaError,
// so callers can use errors.Is/errors.As against sentinels regardless of
// how deep the error has been wrapped.
package errors

import (
	stdErrors "errors"
	"fmt"
)

// ErrorCode classifies a SagaError into one of the taxonomy's categories.
type ErrorCode string

const (
	// ErrCodeAlreadyExists — creating a saga whose id is already in use.
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	// ErrCodeNotFound — operating on an absent sagaId.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeInvalidTransition — a message fails the state invariants.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	// ErrCodeInvalidDefinition — definition validation fails at construction.
	ErrCodeInvalidDefinition ErrorCode = "INVALID_DEFINITION"
	// ErrCodeTaskFailure — a required task's invoke (or middleware) failed.
	ErrCodeTaskFailure ErrorCode = "TASK_FAILURE"
	// ErrCodeCompensationFailure — a compensate callback failed.
	ErrCodeCompensationFailure ErrorCode = "COMPENSATION_FAILURE"
	// ErrCodePersistenceFailure — the log/backend reported an error.
	ErrCodePersistenceFailure ErrorCode = "PERSISTENCE_FAILURE"
	// ErrCodeSubscriberFailure — an event subscriber panicked or returned an error.
	ErrCodeSubscriberFailure ErrorCode = "SUBSCRIBER_FAILURE"
)

// SagaError is the engine's single concrete error type. Code identifies the
// taxonomy category; SagaID/TaskName add context when available; Cause
// chains to whatever the backend or user callback actually returned.
type SagaError struct {
	Code     ErrorCode
	Message  string
	SagaID   string
	TaskName string
	Cause    error
}

func (e *SagaError) Error() string {
	var base string
	switch {
	case e.SagaID != "" && e.TaskName != "":
		base = fmt.Sprintf("%s: %s (saga=%s, task=%s)", e.Code, e.Message, e.SagaID, e.TaskName)
	case e.SagaID != "":
		base = fmt.Sprintf("%s: %s (saga=%s)", e.Code, e.Message, e.SagaID)
	default:
		base = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", base, e.Cause)
	}
	return base
}

func (e *SagaError) Unwrap() error { return e.Cause }

// Is matches by error code only, so a bare sentinel (errAlreadyExists, etc.)
// compares equal to any SagaError of the same code regardless of context.
func (e *SagaError) Is(target error) bool {
	t, ok := target.(*SagaError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// sentinels — only for errors.Is comparison, never returned directly.
var (
	errAlreadyExists         = &SagaError{Code: ErrCodeAlreadyExists}
	errNotFound              = &SagaError{Code: ErrCodeNotFound}
	errInvalidTransition     = &SagaError{Code: ErrCodeInvalidTransition}
	errInvalidDefinition     = &SagaError{Code: ErrCodeInvalidDefinition}
	errTaskFailure           = &SagaError{Code: ErrCodeTaskFailure}
	errCompensationFailure   = &SagaError{Code: ErrCodeCompensationFailure}
	errPersistenceFailure    = &SagaError{Code: ErrCodePersistenceFailure}
	errSubscriberFailureCode = &SagaError{Code: ErrCodeSubscriberFailure}
)

func ErrAlreadyExists() *SagaError     { return errAlreadyExists }
func ErrNotFound() *SagaError          { return errNotFound }
func ErrInvalidTransition() *SagaError { return errInvalidTransition }
func ErrInvalidDefinition() *SagaError { return errInvalidDefinition }
func ErrTaskFailure() *SagaError       { return errTaskFailure }
func ErrCompensationFailure() *SagaError { return errCompensationFailure }
func ErrPersistenceFailure() *SagaError  { return errPersistenceFailure }
func ErrSubscriberFailure() *SagaError   { return errSubscriberFailureCode }

// NewAlreadyExists reports a duplicate sagaId on creation.
func NewAlreadyExists(sagaID string) *SagaError {
	return &SagaError{Code: ErrCodeAlreadyExists, Message: "saga already exists", SagaID: sagaID}
}

// NewNotFound reports an absent sagaId.
func NewNotFound(sagaID string) *SagaError {
	return &SagaError{Code: ErrCodeNotFound, Message: "saga not found", SagaID: sagaID}
}

// NewInvalidTransition reports a message that would violate a state invariant.
func NewInvalidTransition(sagaID, reason string) *SagaError {
	return &SagaError{Code: ErrCodeInvalidTransition, Message: reason, SagaID: sagaID}
}

// NewInvalidDefinition reports one or more definition validation failures.
// Multiple violations are joined with stdErrors.Join by the caller so that
// errors.Is/As and %v still see every violation.
func NewInvalidDefinition(reason string) *SagaError {
	return &SagaError{Code: ErrCodeInvalidDefinition, Message: reason}
}

// NewTaskFailure wraps a required task's invoke/middleware error.
func NewTaskFailure(sagaID, taskName string, cause error) *SagaError {
	return &SagaError{Code: ErrCodeTaskFailure, Message: "task invoke failed", SagaID: sagaID, TaskName: taskName, Cause: cause}
}

// NewCompensationFailure wraps a compensate callback's error.
func NewCompensationFailure(sagaID, taskName string, cause error) *SagaError {
	return &SagaError{Code: ErrCodeCompensationFailure, Message: "compensation failed", SagaID: sagaID, TaskName: taskName, Cause: cause}
}

// NewPersistenceFailure wraps a backend error returned by the log.
func NewPersistenceFailure(sagaID string, cause error) *SagaError {
	return &SagaError{Code: ErrCodePersistenceFailure, Message: "persistence failure", SagaID: sagaID, Cause: cause}
}

// NewSubscriberFailure wraps a panic/error recovered from an event subscriber.
func NewSubscriberFailure(sagaID string, cause error) *SagaError {
	return &SagaError{Code: ErrCodeSubscriberFailure, Message: "subscriber failure", SagaID: sagaID, Cause: cause}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var se *SagaError
	if stdErrors.As(err, &se) {
		return se.Code == code
	}
	return false
}

func IsAlreadyExists(err error) bool      { return Is(err, ErrCodeAlreadyExists) }
func IsNotFound(err error) bool           { return Is(err, ErrCodeNotFound) }
func IsInvalidTransition(err error) bool  { return Is(err, ErrCodeInvalidTransition) }
func IsInvalidDefinition(err error) bool  { return Is(err, ErrCodeInvalidDefinition) }
func IsTaskFailure(err error) bool        { return Is(err, ErrCodeTaskFailure) }
func IsCompensationFailure(err error) bool { return Is(err, ErrCodeCompensationFailure) }
func IsPersistenceFailure(err error) bool  { return Is(err, ErrCodePersistenceFailure) }
func IsSubscriberFailure(err error) bool   { return Is(err, ErrCodeSubscriberFailure) }
