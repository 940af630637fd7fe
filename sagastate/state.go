// Package sagastate implements the saga engine's projection: a pure,
// side-effect-free fold of a Message sequence into the current view of one
// saga, plus the per-message invariant checks that fold must enforce.
package sagastate

import (
	"sagaforge/errors"
	"sagaforge/message"
)

// TaskState is the per-task record tracked inside State.
type TaskState struct {
	Name          string
	Started       bool
	Completed     bool
	StartData     any
	EndData       any
	IsOptional    bool
	CompStarted   bool
	CompCompleted bool
	StartCompData any
	EndCompData   any
	Err           string // set from EndTask metadata["error"], typically an absorbed optional-task failure
}

// State is the fold of a saga's message sequence. Zero value is not valid;
// obtain one via New, applying a StartSaga message first.
type State struct {
	SagaID        string
	Job           any
	SagaCompleted bool
	SagaAborted   bool
	ParentSagaID  string
	ParentTaskID  string
	TaskState     map[string]*TaskState
	SagaContext   map[string]any

	started bool // true once StartSaga has been applied
}

// New returns an empty projection ready to receive a StartSaga message.
func New() *State {
	return &State{
		TaskState:   make(map[string]*TaskState),
		SagaContext: make(map[string]any),
	}
}

// Clone returns a deep-enough copy for use as the "working copy" the two-phase
// write protocol validates a candidate message against before committing it
// to live state.
func (s *State) Clone() *State {
	c := &State{
		SagaID:        s.SagaID,
		Job:           s.Job,
		SagaCompleted: s.SagaCompleted,
		SagaAborted:   s.SagaAborted,
		ParentSagaID:  s.ParentSagaID,
		ParentTaskID:  s.ParentTaskID,
		TaskState:     make(map[string]*TaskState, len(s.TaskState)),
		SagaContext:   make(map[string]any, len(s.SagaContext)),
		started:       s.started,
	}
	for name, ts := range s.TaskState {
		cp := *ts
		c.TaskState[name] = &cp
	}
	for k, v := range s.SagaContext {
		c.SagaContext[k] = v
	}
	return c
}

// Fold applies every message in order to a fresh State, stopping (and
// reporting) at the first invariant violation. This is the replay path the
// coordinator uses to reconstruct a Saga from the log; it is deterministic
// and side-effect free, per Replay determinism.
func Fold(messages []message.Message) (*State, error) {
	s := New()
	for _, m := range messages {
		if err := s.Apply(m); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Apply validates m against the receiver's current fields and, if valid,
// mutates the receiver. On a validation error the receiver is left
// completely unchanged.
func (s *State) Apply(m message.Message) error {
	if err := s.validate(m); err != nil {
		return err
	}
	s.mutate(m)
	return nil
}

// Validate checks m against the current state without mutating anything.
// (The Saga's write protocol does not call it: it applies the message to a
// Clone instead.)
func (s *State) Validate(m message.Message) error {
	return s.validate(m)
}

func (s *State) validate(m message.Message) error {
	if m.Type != message.StartSaga && !s.started {
		return errors.NewInvalidTransition(m.SagaID, "no message may be applied before StartSaga")
	}

	switch m.Type {
	case message.StartSaga:
		if s.started {
			return errors.NewInvalidTransition(m.SagaID, "StartSaga must be unique per sagaId")
		}
		return nil

	case message.EndSaga:
		if s.SagaCompleted || s.SagaAborted {
			return errors.NewInvalidTransition(m.SagaID, "no messages are valid after EndSaga or AbortSaga")
		}
		if !s.isSafe() {
			return errors.NewInvalidTransition(m.SagaID, "EndSaga requires a safe state: no partial task, no compensation in flight")
		}
		return nil

	case message.AbortSaga:
		if s.SagaCompleted {
			return errors.NewInvalidTransition(m.SagaID, "cannot abort an already-completed saga")
		}
		if s.SagaAborted {
			return errors.NewInvalidTransition(m.SagaID, "no messages are valid after AbortSaga except compensating-task messages")
		}
		return nil

	case message.StartTask:
		if s.terminalBlocksAll() {
			return errors.NewInvalidTransition(m.SagaID, "no messages are valid after EndSaga or AbortSaga")
		}
		if ts, ok := s.TaskState[m.TaskID]; ok && ts.Started {
			return errors.NewInvalidTransition(m.SagaID, "StartTask on an already-started task")
		}
		return nil

	case message.EndTask:
		if s.terminalBlocksAll() {
			return errors.NewInvalidTransition(m.SagaID, "no messages are valid after EndSaga or AbortSaga")
		}
		ts, ok := s.TaskState[m.TaskID]
		if !ok || !ts.Started {
			return errors.NewInvalidTransition(m.SagaID, "EndTask requires a prior StartTask")
		}
		if ts.Completed {
			return errors.NewInvalidTransition(m.SagaID, "EndTask on an already-completed task")
		}
		return nil

	case message.StartCompensatingTask:
		if !s.SagaAborted {
			return errors.NewInvalidTransition(m.SagaID, "StartCompensatingTask requires a prior AbortSaga")
		}
		ts, ok := s.TaskState[m.TaskID]
		if !ok || !ts.Completed {
			return errors.NewInvalidTransition(m.SagaID, "StartCompensatingTask requires a prior EndTask")
		}
		if ts.CompStarted {
			return errors.NewInvalidTransition(m.SagaID, "StartCompensatingTask on a task already compensating")
		}
		return nil

	case message.EndCompensatingTask:
		ts, ok := s.TaskState[m.TaskID]
		if !ok || !ts.CompStarted {
			return errors.NewInvalidTransition(m.SagaID, "EndCompensatingTask requires a prior StartCompensatingTask")
		}
		if ts.CompCompleted {
			return errors.NewInvalidTransition(m.SagaID, "EndCompensatingTask on an already-compensated task")
		}
		return nil

	case message.UpdateSagaContext:
		if s.SagaCompleted || s.SagaAborted {
			return errors.NewInvalidTransition(m.SagaID, "UpdateSagaContext is invalid after saga is completed or aborted")
		}
		return nil

	default:
		return errors.NewInvalidTransition(m.SagaID, "unknown message type")
	}
}

// terminalBlocksAll reports whether the saga is past EndSaga/AbortSaga for
// message types that have no exception carved out (everything except
// compensating-task messages, which remain valid after AbortSaga).
func (s *State) terminalBlocksAll() bool {
	return s.SagaCompleted || s.SagaAborted
}

// isSafe reports the §4.2 "safe state" EndSaga requires: every started task
// has ended, and (if aborted) every completed task's compensation has ended.
func (s *State) isSafe() bool {
	for _, ts := range s.TaskState {
		if ts.Started && !ts.Completed {
			return false
		}
		if s.SagaAborted && ts.Completed && !ts.CompCompleted {
			return false
		}
	}
	return true
}

// IsTerminal reports whether the saga has reached completion or a fully
// compensated abort — the condition under which no further forward drive
// or compensation is needed.
func (s *State) IsTerminal() bool {
	if s.SagaCompleted {
		return true
	}
	if !s.SagaAborted {
		return false
	}
	for _, ts := range s.TaskState {
		if ts.Completed && !ts.CompCompleted {
			return false
		}
	}
	return true
}

func (s *State) mutate(m message.Message) {
	switch m.Type {
	case message.StartSaga:
		s.started = true
		s.SagaID = m.SagaID
		s.Job = m.Data
		s.ParentSagaID = m.ParentSagaID
		s.ParentTaskID = m.ParentTaskID
		if s.TaskState == nil {
			s.TaskState = make(map[string]*TaskState)
		}
		if s.SagaContext == nil {
			s.SagaContext = make(map[string]any)
		}

	case message.EndSaga:
		s.SagaCompleted = true

	case message.AbortSaga:
		s.SagaAborted = true

	case message.StartTask:
		ts := s.taskOrNew(m.TaskID)
		ts.Started = true
		ts.StartData = m.Data
		ts.IsOptional = m.IsOptional()

	case message.EndTask:
		ts := s.taskOrNew(m.TaskID)
		ts.Completed = true
		ts.EndData = m.Data
		if m.Metadata != nil {
			if errMsg, ok := m.Metadata["error"].(string); ok {
				ts.Err = errMsg
			}
		}

	case message.StartCompensatingTask:
		ts := s.taskOrNew(m.TaskID)
		ts.CompStarted = true
		ts.StartCompData = m.Data

	case message.EndCompensatingTask:
		ts := s.taskOrNew(m.TaskID)
		ts.CompCompleted = true
		ts.EndCompData = m.Data

	case message.UpdateSagaContext:
		delta, ok := m.Data.(map[string]any)
		if !ok {
			return
		}
		if s.SagaContext == nil {
			s.SagaContext = make(map[string]any)
		}
		for k, v := range delta {
			s.SagaContext[k] = v
		}
	}
}

func (s *State) taskOrNew(name string) *TaskState {
	ts, ok := s.TaskState[name]
	if !ok {
		ts = &TaskState{Name: name}
		s.TaskState[name] = ts
	}
	return ts
}
