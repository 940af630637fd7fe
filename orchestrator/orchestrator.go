// Package orchestrator implements the central saga state machine: forward
// drive, failure policy, middleware chain, and compensation.
package orchestrator

import (
	"context"

	"sagaforge/definition"
	"sagaforge/logging"
	"sagaforge/saga"
)

// Orchestrator drives one Saga against one Definition. Its "program
// counter" is the Saga's projected state, not an in-memory cursor, so Run
// may be called again after any crash with no special-case recovery logic.
type Orchestrator struct {
	def    *definition.Definition
	bus    *EventBus
	logger logging.ILogger
}

// New constructs an Orchestrator for def, publishing events to bus.
func New(def *definition.Definition, bus *EventBus, logger logging.ILogger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	if bus == nil {
		bus = NewEventBus(logger)
	}
	return &Orchestrator{def: def, bus: bus, logger: logger}
}

// Run drives s to a terminal state (or as far as it can go before a
// persistence failure). It completes normally for every success and
// compensation outcome; only non-recoverable conditions (persistence
// failures) are returned as errors. Terminal idempotence: calling Run on an
// already-completed or fully-compensated saga performs no log writes.
func (o *Orchestrator) Run(ctx context.Context, s *saga.Saga) error {
	if s.IsSagaCompleted() {
		return nil
	}
	if s.IsSagaAborted() {
		if s.IsTerminal() {
			return nil
		}
		if err := o.compensate(ctx, s); err != nil {
			return err
		}
		if s.IsTerminal() {
			o.bus.Publish(ctx, Event{Type: SagaAborted, SagaID: s.SagaID()})
		}
		return nil
	}

	if len(s.TaskIDs()) == 0 {
		// No task has ever been recorded for this saga: this is the first
		// Run, not a resume, so emit sagaStarted exactly once.
		o.bus.Publish(ctx, Event{Type: SagaStarted, SagaID: s.SagaID()})
	}

	aborted, err := o.forwardDrive(ctx, s)
	if err != nil {
		return err
	}
	if aborted {
		if err := o.compensate(ctx, s); err != nil {
			return err
		}
		if s.IsTerminal() {
			o.bus.Publish(ctx, Event{Type: SagaAborted, SagaID: s.SagaID()})
		}
		return nil
	}

	if err := s.EndSaga(ctx); err != nil {
		return err
	}
	o.bus.Publish(ctx, Event{Type: SagaSucceeded, SagaID: s.SagaID()})
	return nil
}

// forwardDrive iterates the definition's intermediate steps in order. It
// returns (true, nil) when a required task failed and the saga has been
// aborted (caller should proceed to compensation).
func (o *Orchestrator) forwardDrive(ctx context.Context, s *saga.Saga) (bool, error) {
	steps := o.def.Steps()

	for i, step := range steps {
		taskID := step.Name

		if s.IsTaskCompleted(taskID) {
			continue // replay-safe: already done
		}

		if s.IsTaskStarted(taskID) {
			// Crash between StartTask and EndTask: retry invoke, no new StartTask.
			prev := s.StartTaskData(taskID)
			result, invokeErr := step.Invoke(o.invocation(s, step, prev, nil))
			if invokeErr != nil {
				aborted, err := o.onStepFailure(ctx, s, step, invokeErr)
				if err != nil {
					return false, err
				}
				if aborted {
					return true, nil
				}
				continue
			}
			if err := s.EndTask(ctx, taskID, result); err != nil {
				return false, err
			}
			o.bus.Publish(ctx, Event{Type: TaskSucceeded, SagaID: s.SagaID(), TaskID: taskID, Data: result})
			continue
		}

		prev := o.prevResult(s, steps, i)

		mwBag, vetoErr := o.runMiddleware(s, step, prev)
		if vetoErr != nil {
			// A middleware veto/error is always treated as a required-task
			// failure, regardless of the step's own isOptional flag.
			if err := o.abortSaga(ctx, s, step, vetoErr); err != nil {
				return false, err
			}
			return true, nil
		}

		if err := s.StartTask(ctx, taskID, prev, step.IsOptional); err != nil {
			return false, err
		}
		o.bus.Publish(ctx, Event{Type: TaskStarted, SagaID: s.SagaID(), TaskID: taskID})

		result, invokeErr := step.Invoke(o.invocation(s, step, prev, mwBag))
		if invokeErr != nil {
			aborted, err := o.onStepFailure(ctx, s, step, invokeErr)
			if err != nil {
				return false, err
			}
			if aborted {
				return true, nil
			}
			continue
		}

		if err := s.EndTask(ctx, taskID, result); err != nil {
			return false, err
		}
		o.bus.Publish(ctx, Event{Type: TaskSucceeded, SagaID: s.SagaID(), TaskID: taskID, Data: result})
	}

	return false, nil
}

// onStepFailure applies the §4.6.2 failure policy: optional steps are
// absorbed and forward drive continues; required steps abort the saga.
func (o *Orchestrator) onStepFailure(ctx context.Context, s *saga.Saga, step definition.Step, cause error) (aborted bool, err error) {
	if step.IsOptional {
		if err := s.EndTaskWithMetadata(ctx, step.Name, nil, map[string]any{"error": cause.Error()}); err != nil {
			return false, err
		}
		o.bus.Publish(ctx, Event{Type: OptionalTaskFailed, SagaID: s.SagaID(), TaskID: step.Name, Err: cause})
		return false, nil
	}

	if err := o.abortSaga(ctx, s, step, cause); err != nil {
		return false, err
	}
	return true, nil
}

// abortSaga appends AbortSaga and emits taskFailed/sagaFailed for cause.
func (o *Orchestrator) abortSaga(ctx context.Context, s *saga.Saga, step definition.Step, cause error) error {
	if err := s.AbortSaga(ctx); err != nil {
		return err
	}
	o.bus.Publish(ctx, Event{Type: TaskFailed, SagaID: s.SagaID(), TaskID: step.Name, Err: cause})
	o.bus.Publish(ctx, Event{Type: SagaFailed, SagaID: s.SagaID(), Err: cause})
	return nil
}

// prevResult is the end-data of the immediately previous step, or nil for
// the first step. When the previous step failed as optional its end-data
// was recorded as nil, so no special casing is needed here.
func (o *Orchestrator) prevResult(s *saga.Saga, steps []definition.Step, i int) any {
	if i == 0 {
		return nil
	}
	return s.EndTaskData(steps[i-1].Name)
}

// runMiddleware runs step's middleware chain in declared order, merging
// each non-nil returned bag. Returning false or an error vetoes the step.
func (o *Orchestrator) runMiddleware(s *saga.Saga, step definition.Step, prev any) (map[string]any, error) {
	bag := make(map[string]any)
	for _, mw := range step.Middleware {
		out, ok, err := mw(o.invocation(s, step, prev, bag))
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errMiddlewareVeto{step: step.Name}
		}
		for k, v := range out {
			bag[k] = v
		}
	}
	return bag, nil
}

func (o *Orchestrator) invocation(s *saga.Saga, step definition.Step, prev any, middleware map[string]any) definition.Invocation {
	return definition.Invocation{
		Job:          s.Job(),
		Prev:         prev,
		Middleware:   middleware,
		API:          s.AsReadOnly(),
		SagaID:       s.SagaID(),
		TaskID:       step.Name,
		ParentSagaID: s.ParentSagaID(),
		ParentTaskID: s.ParentTaskID(),
		Ctx:          contextHandle{s: s},
	}
}

// compensate walks the definition's intermediate steps in reverse,
// compensating every completed task that hasn't already been compensated.
// A failed compensate is reported and left incomplete; later (earlier in
// forward order) tasks are still attempted, matching the observed behavior
// this spec preserves rather than halting the whole rollback.
func (o *Orchestrator) compensate(ctx context.Context, s *saga.Saga) error {
	steps := o.def.Steps()

	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		taskID := step.Name

		if !s.IsTaskCompleted(taskID) {
			continue // started-but-not-ended has no recorded output to compensate
		}
		if s.IsCompensatingCompleted(taskID) {
			continue // replay-safe
		}

		if !s.IsCompensatingStarted(taskID) {
			if err := s.StartCompensatingTask(ctx, taskID, s.EndTaskData(taskID)); err != nil {
				return err
			}
			o.bus.Publish(ctx, Event{Type: CompensationStarted, SagaID: s.SagaID(), TaskID: taskID})
		}

		result, compErr := step.Compensate(definition.Compensation{
			Job:      s.Job(),
			TaskData: s.EndTaskData(taskID),
			API:      s.AsReadOnly(),
			SagaID:   s.SagaID(),
			TaskID:   taskID,
			Ctx:      contextHandle{s: s},
		})
		if compErr != nil {
			o.bus.Publish(ctx, Event{Type: CompensationFailed, SagaID: s.SagaID(), TaskID: taskID, Err: compErr})
			continue
		}

		if err := s.EndCompensatingTask(ctx, taskID, result); err != nil {
			return err
		}
		o.bus.Publish(ctx, Event{Type: CompensationSucceeded, SagaID: s.SagaID(), TaskID: taskID, Data: result})
	}

	return nil
}

type errMiddlewareVeto struct{ step string }

func (e errMiddlewareVeto) Error() string { return "middleware vetoed step " + e.step }

// contextHandle is the writable context capability handed to callbacks; it
// funnels every mutation through UpdateSagaContext rather than exposing the
// state map directly.
type contextHandle struct{ s *saga.Saga }

func (c contextHandle) Get(key string) (any, bool) {
	v, ok := c.s.SagaContext()[key]
	return v, ok
}

func (c contextHandle) All() map[string]any { return c.s.SagaContext() }

func (c contextHandle) Update(ctx context.Context, delta map[string]any) error {
	return c.s.UpdateSagaContext(ctx, delta)
}
