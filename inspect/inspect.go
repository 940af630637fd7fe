// Package inspect is the read-only adapter the spec reserves for a
// dashboard-style consumer: list sagas across named log instances, fold one
// saga into a display-ready snapshot, and delegate abort/delete to the
// coordinator's cascading operations. It never mutates state directly.
package inspect

import (
	"context"
	"sort"
	"time"

	"sagaforge/coordinator"
	"sagaforge/eventlog"
	"sagaforge/message"
	"sagaforge/sagastate"
)

// SagaStatus is the coarse status the dashboard displays for a saga.
type SagaStatus string

const (
	SagaActive    SagaStatus = "active"
	SagaCompleted SagaStatus = "completed"
	SagaAborted   SagaStatus = "aborted"
)

// TaskStatus is the per-task status the dashboard displays.
type TaskStatus string

const (
	TaskNotStarted   TaskStatus = "not_started"
	TaskStarted      TaskStatus = "started"
	TaskCompleted    TaskStatus = "completed"
	TaskCompensating TaskStatus = "compensating"
	TaskCompensated  TaskStatus = "compensated"
)

// ChildDepth controls how far getSagaInfo recurses into child sagas.
type ChildDepth string

const (
	ChildrenNone    ChildDepth = "none"
	ChildrenShallow ChildDepth = "shallow"
	ChildrenFull    ChildDepth = "full"
)

// TaskInfo is one task's display-ready snapshot.
type TaskInfo struct {
	TaskName    string
	Status      TaskStatus
	StartedAt   *time.Time
	CompletedAt *time.Time
	Data        any
	Error       string
	IsOptional  bool
}

// SagaInfo is a saga's display-ready snapshot, per §6.2.
type SagaInfo struct {
	SagaID       string
	Status       SagaStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Job          any
	ParentSagaID string
	ParentTaskID string
	Tasks        []TaskInfo
	ChildSagas   []SagaInfo
}

// Registry names the Log instances ("sources") inspect can reach.
type Registry struct {
	sources map[string]eventlog.Log
	order   []string
}

// NewRegistry builds a Registry from a name->Log mapping.
func NewRegistry(sources map[string]eventlog.Log) *Registry {
	r := &Registry{sources: make(map[string]eventlog.Log, len(sources))}
	for name, log := range sources {
		r.sources[name] = log
		r.order = append(r.order, name)
	}
	sort.Strings(r.order)
	return r
}

// ListSources returns every registered source name, sorted.
func (r *Registry) ListSources() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ListSagas lists sagaIds in source; when rootOnly is set, only sagas whose
// StartSaga carries no parentSagaId are included.
func (r *Registry) ListSagas(ctx context.Context, source string, rootOnly bool) ([]string, error) {
	log, err := r.log(source)
	if err != nil {
		return nil, err
	}

	ids, err := log.GetActiveSagaIds(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)

	if !rootOnly {
		return ids, nil
	}

	var roots []string
	for _, id := range ids {
		msgs, err := log.GetMessages(ctx, id)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 && msgs[0].ParentSagaID == "" {
			roots = append(roots, id)
		}
	}
	return roots, nil
}

// GetSagaInfo folds source's log for sagaId into a SagaInfo, recursing into
// children per depth.
func (r *Registry) GetSagaInfo(ctx context.Context, source, sagaID string, depth ChildDepth) (*SagaInfo, error) {
	log, err := r.log(source)
	if err != nil {
		return nil, err
	}
	return r.sagaInfo(ctx, log, sagaID, depth)
}

func (r *Registry) sagaInfo(ctx context.Context, log eventlog.Log, sagaID string, depth ChildDepth) (*SagaInfo, error) {
	msgs, err := log.GetMessages(ctx, sagaID)
	if err != nil {
		return nil, err
	}
	state, err := sagastate.Fold(msgs)
	if err != nil {
		return nil, err
	}

	info := &SagaInfo{
		SagaID:       sagaID,
		Status:       sagaStatus(state),
		Job:          state.Job,
		ParentSagaID: state.ParentSagaID,
		ParentTaskID: state.ParentTaskID,
	}
	if len(msgs) > 0 {
		info.CreatedAt = msgs[0].Timestamp
		info.UpdatedAt = msgs[len(msgs)-1].Timestamp
	}

	taskNames := make([]string, 0, len(state.TaskState))
	for name := range state.TaskState {
		taskNames = append(taskNames, name)
	}
	sort.Strings(taskNames)

	taskTimes := taskTimestamps(msgs)
	for _, name := range taskNames {
		ts := state.TaskState[name]
		times := taskTimes[name]
		info.Tasks = append(info.Tasks, TaskInfo{
			TaskName:    name,
			Status:      taskStatus(ts),
			StartedAt:   times.started,
			CompletedAt: times.completed,
			Data:        ts.EndData,
			Error:       ts.Err,
			IsOptional:  ts.IsOptional,
		})
	}

	if depth == ChildrenNone {
		return info, nil
	}

	childIDs, err := log.GetChildSagaIds(ctx, sagaID)
	if err != nil {
		return nil, err
	}
	sort.Strings(childIDs)

	childDepth := ChildrenNone
	if depth == ChildrenFull {
		childDepth = ChildrenFull
	}
	for _, childID := range childIDs {
		child, err := r.sagaInfo(ctx, log, childID, childDepth)
		if err != nil {
			return nil, err
		}
		info.ChildSagas = append(info.ChildSagas, *child)
	}
	return info, nil
}

// AbortSaga aborts sagaID and its transitive children via the coordinator.
func (r *Registry) AbortSaga(ctx context.Context, source, sagaID string) error {
	log, err := r.log(source)
	if err != nil {
		return err
	}
	return coordinator.New(log, nil).AbortWithChildren(ctx, sagaID)
}

// DeleteSaga deletes sagaID and its transitive children via the coordinator.
func (r *Registry) DeleteSaga(ctx context.Context, source, sagaID string) error {
	log, err := r.log(source)
	if err != nil {
		return err
	}
	return coordinator.New(log, nil).DeleteWithChildren(ctx, sagaID)
}

func (r *Registry) log(source string) (eventlog.Log, error) {
	log, ok := r.sources[source]
	if !ok {
		return nil, unknownSourceError{source: source}
	}
	return log, nil
}

type unknownSourceError struct{ source string }

func (e unknownSourceError) Error() string { return "inspect: unknown source " + e.source }

// sagaStatus derives §6.2's saga status ordering: completed, else aborted,
// else active.
func sagaStatus(state *sagastate.State) SagaStatus {
	switch {
	case state.SagaCompleted:
		return SagaCompleted
	case state.SagaAborted:
		return SagaAborted
	default:
		return SagaActive
	}
}

// taskStatus derives §6.2's task status: compensation fields take priority
// over the plain started/completed fields.
func taskStatus(ts *sagastate.TaskState) TaskStatus {
	switch {
	case ts.CompCompleted:
		return TaskCompensated
	case ts.CompStarted:
		return TaskCompensating
	case ts.Completed:
		return TaskCompleted
	case ts.Started:
		return TaskStarted
	default:
		return TaskNotStarted
	}
}

type taskTimeWindow struct {
	started, completed *time.Time
}

// taskTimestamps correlates each task's first StartTask/EndTask message
// timestamp for display, without mutating the fold.
func taskTimestamps(msgs []message.Message) map[string]taskTimeWindow {
	out := make(map[string]taskTimeWindow)
	for _, m := range msgs {
		switch m.Type {
		case message.StartTask:
			w := out[m.TaskID]
			if w.started == nil {
				ts := m.Timestamp
				w.started = &ts
			}
			out[m.TaskID] = w
		case message.EndTask:
			w := out[m.TaskID]
			ts := m.Timestamp
			w.completed = &ts
			out[m.TaskID] = w
		}
	}
	return out
}
