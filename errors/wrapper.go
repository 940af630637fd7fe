package errors

import (
	"context"
	"fmt"
	"runtime"

	"sagaforge/logging"
)

// Wrap attaches a saga-domain error code to err without logging.
// Intended for use at component boundaries (saga/orchestrator/coordinator).
func Wrap(_ context.Context, err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}
	return &SagaError{Code: code, Message: msg, Cause: err}
}

// WrapWithLog wraps err and immediately logs it as a warning, for failures
// the caller needs visible in the log stream the moment they occur
// (task/compensation failures, subscriber panics).
func WrapWithLog(ctx context.Context, err error, code ErrorCode, msg string, fields ...logging.Field) error {
	if err == nil {
		return nil
	}

	_, file, line, _ := runtime.Caller(1)
	wrapped := &SagaError{Code: code, Message: msg, Cause: err}

	allFields := append([]logging.Field{
		logging.Error(err),
		logging.String("error_code", string(code)),
		logging.String("location", fmt.Sprintf("%s:%d", file, line)),
	}, fields...)

	logging.GetLogger().Warn(ctx, msg, allFields...)

	return wrapped
}

// WrapPersistenceError normalizes a Log backend error into PersistenceFailure,
// except when the backend is reporting its own not-found/already-exists
// condition, which is preserved as-is so callers can branch on it.
func WrapPersistenceError(ctx context.Context, err error, sagaID, operation string) error {
	if err == nil {
		return nil
	}

	if IsNotFound(err) || IsAlreadyExists(err) {
		return err
	}

	return WrapWithLog(ctx, err, ErrCodePersistenceFailure,
		fmt.Sprintf("persistence operation failed: %s", operation),
		logging.String("operation", operation),
		logging.String("saga_id", sagaID),
	)
}

// New creates a SagaError annotated with the caller's source location,
// for errors originating inside the engine rather than wrapping one.
func New(code ErrorCode, msg string) error {
	_, file, line, _ := runtime.Caller(1)
	return &SagaError{Code: code, Message: fmt.Sprintf("%s (location: %s:%d)", msg, file, line)}
}
