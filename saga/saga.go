// Package saga implements the single programmatic handle to one logical
// saga: it owns a projected State plus the Log it is backed by, and
// serializes every write through the validate-then-append-then-apply
// protocol.
package saga

import (
	"context"
	"sync"

	sagaerr "sagaforge/errors"
	"sagaforge/eventlog"
	"sagaforge/logging"
	"sagaforge/message"
	"sagaforge/sagastate"
)

// ReadOnly is the capability-narrowed view handed to task callbacks: it
// exposes only the read operations, so a callback can observe the saga's
// state but never mutate it directly (mutation must go through the message
// protocol via StartTask/EndTask/UpdateSagaContext etc).
type ReadOnly interface {
	SagaID() string
	Job() any
	TaskIDs() []string
	IsTaskStarted(taskID string) bool
	IsTaskCompleted(taskID string) bool
	StartTaskData(taskID string) any
	EndTaskData(taskID string) any
	IsCompensatingStarted(taskID string) bool
	IsCompensatingCompleted(taskID string) bool
	StartCompensatingData(taskID string) any
	EndCompensatingData(taskID string) any
	IsSagaCompleted() bool
	IsSagaAborted() bool
	SagaContext() map[string]any
	TaskError(taskID string) string
}

// Saga is the mutable handle. All mutating methods serialize via mu so the
// validate/append/apply sequence is atomic with respect to other in-process
// writers of the same saga.
type Saga struct {
	mu     sync.Mutex
	sagaID string
	log    eventlog.Log
	state  *sagastate.State
	logger logging.ILogger
}

// New wraps an already-initialized state (typically produced by
// sagastate.Fold over the log's message sequence) with the Log it is backed
// by.
func New(sagaID string, log eventlog.Log, state *sagastate.State, logger logging.ILogger) *Saga {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Saga{sagaID: sagaID, log: log, state: state, logger: logger}
}

// Reconstruct fetches sagaID's message sequence from log and folds it into a
// fresh State, per "Reconstruction as pure fold".
func Reconstruct(ctx context.Context, sagaID string, log eventlog.Log, logger logging.ILogger) (*Saga, error) {
	msgs, err := log.GetMessages(ctx, sagaID)
	if err != nil {
		return nil, err
	}
	state, err := sagastate.Fold(msgs)
	if err != nil {
		return nil, err
	}
	return New(sagaID, log, state, logger), nil
}

// updateSagaState is the two-phase write protocol: (a) validate msg against
// a working copy of state; (b) if valid, durably append to the log; (c) on
// successful append, apply the validated message to the live state.
// Failures at (a) never touch the log or live state; failures at (b) leave
// live state untouched.
func (s *Saga) updateSagaState(ctx context.Context, msg message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.Clone()
	if err := working.Apply(msg); err != nil {
		return err
	}

	if err := s.log.LogMessage(ctx, msg); err != nil {
		return sagaerr.WrapPersistenceError(ctx, err, s.sagaID, "logMessage")
	}

	s.state = working
	return nil
}

func (s *Saga) StartTask(ctx context.Context, taskID string, data any, isOptional bool) error {
	return s.updateSagaState(ctx, message.NewStartTask(s.sagaID, taskID, data, isOptional))
}

func (s *Saga) EndTask(ctx context.Context, taskID string, data any) error {
	return s.updateSagaState(ctx, message.New(s.sagaID, message.EndTask, taskID, data, nil))
}

// EndTaskWithMetadata records EndTask carrying extra metadata — used by the
// orchestrator to correlate an absorbed optional-task failure's error onto
// the message the inspection interface later reads back.
func (s *Saga) EndTaskWithMetadata(ctx context.Context, taskID string, data any, metadata map[string]any) error {
	return s.updateSagaState(ctx, message.New(s.sagaID, message.EndTask, taskID, data, metadata))
}

func (s *Saga) AbortSaga(ctx context.Context) error {
	return s.updateSagaState(ctx, message.New(s.sagaID, message.AbortSaga, "", nil, nil))
}

func (s *Saga) EndSaga(ctx context.Context) error {
	return s.updateSagaState(ctx, message.New(s.sagaID, message.EndSaga, "", nil, nil))
}

func (s *Saga) StartCompensatingTask(ctx context.Context, taskID string, data any) error {
	return s.updateSagaState(ctx, message.New(s.sagaID, message.StartCompensatingTask, taskID, data, nil))
}

func (s *Saga) EndCompensatingTask(ctx context.Context, taskID string, data any) error {
	return s.updateSagaState(ctx, message.New(s.sagaID, message.EndCompensatingTask, taskID, data, nil))
}

func (s *Saga) UpdateSagaContext(ctx context.Context, delta map[string]any) error {
	return s.updateSagaState(ctx, message.New(s.sagaID, message.UpdateSagaContext, "", delta, nil))
}

// --- read operations, safe for concurrent use while writes are serialized by mu ---

func (s *Saga) SagaID() string { return s.sagaID }

func (s *Saga) Job() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Job
}

func (s *Saga) TaskIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.state.TaskState))
	for id := range s.state.TaskState {
		ids = append(ids, id)
	}
	return ids
}

func (s *Saga) task(taskID string) *sagastate.TaskState {
	ts, ok := s.state.TaskState[taskID]
	if !ok {
		return &sagastate.TaskState{Name: taskID}
	}
	return ts
}

func (s *Saga) IsTaskStarted(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task(taskID).Started
}

func (s *Saga) IsTaskCompleted(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task(taskID).Completed
}

func (s *Saga) StartTaskData(taskID string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task(taskID).StartData
}

func (s *Saga) EndTaskData(taskID string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task(taskID).EndData
}

func (s *Saga) IsCompensatingStarted(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task(taskID).CompStarted
}

func (s *Saga) IsCompensatingCompleted(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task(taskID).CompCompleted
}

func (s *Saga) StartCompensatingData(taskID string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task(taskID).StartCompData
}

// TaskError returns the error correlated onto taskID's EndTask metadata
// (e.g. an absorbed optional-task failure), or "" if none was recorded.
func (s *Saga) TaskError(taskID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task(taskID).Err
}

func (s *Saga) EndCompensatingData(taskID string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task(taskID).EndCompData
}

func (s *Saga) IsSagaCompleted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SagaCompleted
}

func (s *Saga) IsSagaAborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SagaAborted
}

func (s *Saga) IsTerminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IsTerminal()
}

func (s *Saga) SagaContext() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.state.SagaContext))
	for k, v := range s.state.SagaContext {
		out[k] = v
	}
	return out
}

func (s *Saga) ParentSagaID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ParentSagaID
}

func (s *Saga) ParentTaskID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ParentTaskID
}

// AsReadOnly returns a capability-narrowed view exposing only read methods.
func (s *Saga) AsReadOnly() ReadOnly { return readOnlyView{s} }

type readOnlyView struct{ s *Saga }

func (r readOnlyView) SagaID() string                       { return r.s.SagaID() }
func (r readOnlyView) Job() any                              { return r.s.Job() }
func (r readOnlyView) TaskIDs() []string                     { return r.s.TaskIDs() }
func (r readOnlyView) IsTaskStarted(taskID string) bool      { return r.s.IsTaskStarted(taskID) }
func (r readOnlyView) IsTaskCompleted(taskID string) bool    { return r.s.IsTaskCompleted(taskID) }
func (r readOnlyView) StartTaskData(taskID string) any       { return r.s.StartTaskData(taskID) }
func (r readOnlyView) EndTaskData(taskID string) any         { return r.s.EndTaskData(taskID) }
func (r readOnlyView) IsCompensatingStarted(taskID string) bool {
	return r.s.IsCompensatingStarted(taskID)
}
func (r readOnlyView) IsCompensatingCompleted(taskID string) bool {
	return r.s.IsCompensatingCompleted(taskID)
}
func (r readOnlyView) StartCompensatingData(taskID string) any { return r.s.StartCompensatingData(taskID) }
func (r readOnlyView) EndCompensatingData(taskID string) any   { return r.s.EndCompensatingData(taskID) }
func (r readOnlyView) IsSagaCompleted() bool                   { return r.s.IsSagaCompleted() }
func (r readOnlyView) IsSagaAborted() bool                     { return r.s.IsSagaAborted() }
func (r readOnlyView) SagaContext() map[string]any             { return r.s.SagaContext() }
func (r readOnlyView) TaskError(taskID string) string          { return r.s.TaskError(taskID) }
