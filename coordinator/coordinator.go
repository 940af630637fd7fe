// Package coordinator is the lifecycle entry point above the Log: saga
// creation, crash recovery, and cascading abort/delete across parent/child
// saga hierarchies.
package coordinator

import (
	"context"

	"github.com/google/uuid"

	sagaerr "sagaforge/errors"
	"sagaforge/eventlog"
	"sagaforge/logging"
	"sagaforge/saga"
)

// NewSagaID generates a fresh random saga id for callers that don't derive
// one from a business key.
func NewSagaID() string { return uuid.NewString() }

// RecoveryMode selects how Recover treats a saga that isn't already
// terminal. The coordinator never picks a mode itself — that decision
// belongs to the caller (e.g. a worker recovering forward, an operator
// forcing rollback).
type RecoveryMode int

const (
	// ForwardRecovery returns the saga positioned at its last recorded
	// state, to be driven forward (or resumed mid-task) by the orchestrator.
	ForwardRecovery RecoveryMode = iota
	// RollbackRecovery forces compensation: if the saga is not already
	// terminal and not in a safe state, AbortSaga is appended before return.
	RollbackRecovery
)

// Coordinator is a thin, stateless wrapper around a Log.
type Coordinator struct {
	log    eventlog.Log
	logger logging.ILogger
}

// New constructs a Coordinator backed by log.
func New(log eventlog.Log, logger logging.ILogger) *Coordinator {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Coordinator{log: log, logger: logger}
}

// CreateSaga starts a new saga sequence and returns a Saga positioned at
// its initial (StartSaga-only) state. parentSagaID/parentTaskID are empty
// for a root saga. Fails with AlreadyExists if sagaID is already in use.
func (c *Coordinator) CreateSaga(ctx context.Context, sagaID string, job any, parentSagaID, parentTaskID string) (*saga.Saga, error) {
	if _, err := c.log.StartSaga(ctx, sagaID, job, parentSagaID, parentTaskID); err != nil {
		return nil, err
	}
	return saga.Reconstruct(ctx, sagaID, c.log, c.logger)
}

// Recover folds sagaID's message sequence and, per mode, optionally forces
// compensation before returning. The returned Saga's state is exactly what
// a caller (typically an Orchestrator) should drive next.
func (c *Coordinator) Recover(ctx context.Context, sagaID string, mode RecoveryMode) (*saga.Saga, error) {
	s, err := saga.Reconstruct(ctx, sagaID, c.log, c.logger)
	if err != nil {
		return nil, err
	}

	if mode == RollbackRecovery && !s.IsTerminal() && !isSafe(s) {
		if err := s.AbortSaga(ctx); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// RecoverOrCreate attempts Recover; if the log reports NotFound, it falls
// through to CreateSaga. This is the idempotent bootstrap used by workers
// that don't know whether a given sagaID has run before.
func (c *Coordinator) RecoverOrCreate(ctx context.Context, sagaID string, job any, parentSagaID, parentTaskID string, mode RecoveryMode) (*saga.Saga, error) {
	s, err := c.Recover(ctx, sagaID, mode)
	if err == nil {
		return s, nil
	}
	if !sagaerr.IsNotFound(err) {
		return nil, err
	}
	return c.CreateSaga(ctx, sagaID, job, parentSagaID, parentTaskID)
}

// AbortWithChildren appends AbortSaga to sagaID and every saga reachable
// through its transitive StartSaga parent links, skipping any that are
// already terminal.
func (c *Coordinator) AbortWithChildren(ctx context.Context, sagaID string) error {
	return c.walkFamily(ctx, sagaID, func(id string) error {
		s, err := saga.Reconstruct(ctx, id, c.log, c.logger)
		if err != nil {
			return err
		}
		if s.IsTerminal() {
			return nil
		}
		return s.AbortSaga(ctx)
	})
}

// DeleteWithChildren deletes sagaID and every saga reachable through its
// transitive StartSaga parent links.
func (c *Coordinator) DeleteWithChildren(ctx context.Context, sagaID string) error {
	return c.walkFamily(ctx, sagaID, func(id string) error {
		return c.log.DeleteSaga(ctx, id)
	})
}

// walkFamily applies fn to sagaID and recursively to every descendant
// reported by GetChildSagaIds, depth-first.
func (c *Coordinator) walkFamily(ctx context.Context, sagaID string, fn func(id string) error) error {
	if err := fn(sagaID); err != nil {
		return err
	}
	children, err := c.log.GetChildSagaIds(ctx, sagaID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := c.walkFamily(ctx, child, fn); err != nil {
			return err
		}
	}
	return nil
}

// isSafe reports whether s has no task left mid-flight (started but not
// completed, and not mid-compensation) — i.e. a resumed orchestrator could
// safely continue forward drive without first forcing an abort.
func isSafe(s *saga.Saga) bool {
	for _, taskID := range s.TaskIDs() {
		if s.IsTaskStarted(taskID) && !s.IsTaskCompleted(taskID) {
			return false
		}
		if s.IsCompensatingStarted(taskID) && !s.IsCompensatingCompleted(taskID) {
			return false
		}
	}
	return true
}
