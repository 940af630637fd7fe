// Package definition captures a linear saga workflow as a validated
// sequence of steps.
package definition

import (
	"context"
	stderrors "errors"
	"fmt"

	sagaerr "sagaforge/errors"
	"sagaforge/saga"
)

// InvokeFunc is a step's forward action. invocation is the orchestrator-supplied
// invocation context (job, prev result, middleware bag, read-only saga
// view, writable context handle).
type InvokeFunc func(invocation Invocation) (any, error)

// CompensateFunc is a step's reverse action, run during rollback for each
// completed task in reverse order.
type CompensateFunc func(compensation Compensation) (any, error)

// MiddlewareFunc runs before a step's invoke. Returning (nil, false, nil)
// vetoes the step; returning an error also vetoes it; a non-nil map is
// shallow-merged into the accumulating middleware bag.
type MiddlewareFunc func(invocation Invocation) (map[string]any, bool, error)

// ContextHandle is the writable view of a saga's shared context bag. It
// funnels every update through the message protocol (UpdateSagaContext)
// rather than giving callbacks raw access to the state map.
type ContextHandle interface {
	Get(key string) (any, bool)
	All() map[string]any
	Update(ctx context.Context, delta map[string]any) error
}

// Invocation bundles what a Step's Invoke/Middleware see.
type Invocation struct {
	Job          any
	Prev         any
	Middleware   map[string]any
	API          saga.ReadOnly
	SagaID       string
	TaskID       string
	ParentSagaID string
	ParentTaskID string
	Ctx          ContextHandle
}

// Compensation bundles what a Step's Compensate sees.
type Compensation struct {
	Job      any
	TaskData any
	API      saga.ReadOnly
	SagaID   string
	TaskID   string
	Ctx      ContextHandle
}

// Step is one unit of forward/compensating work in a Definition.
type Step struct {
	Name       string
	Invoke     InvokeFunc
	Compensate CompensateFunc
	Middleware []MiddlewareFunc
	IsOptional bool
}

// Definition is a validated, ordered sequence of steps. The first and last
// slots are implicit synthetic bookends the caller never names.
type Definition struct {
	steps []Step
}

// New validates steps and returns a Definition, or a joined error reporting
// every violation found (not just the first).
func New(steps []Step) (*Definition, error) {
	var violations []error

	if len(steps) == 0 {
		violations = append(violations, sagaerr.NewInvalidDefinition("a definition must have at least one step"))
	}

	seen := make(map[string]bool, len(steps))
	for i, s := range steps {
		if s.Name == "" {
			violations = append(violations, sagaerr.NewInvalidDefinition(fmt.Sprintf("step %d: name must be non-empty", i)))
			continue
		}
		if seen[s.Name] {
			violations = append(violations, sagaerr.NewInvalidDefinition(fmt.Sprintf("step %q: name must be unique within the definition", s.Name)))
		}
		seen[s.Name] = true

		if s.Invoke == nil {
			violations = append(violations, sagaerr.NewInvalidDefinition(fmt.Sprintf("step %q: invoke is required", s.Name)))
		}
		if s.Compensate == nil {
			steps[i].Compensate = noopCompensate
		}
	}

	if len(violations) > 0 {
		return nil, stderrors.Join(violations...)
	}

	return &Definition{steps: steps}, nil
}

func noopCompensate(Compensation) (any, error) { return nil, nil }

// Steps returns the definition's intermediate steps in declared order.
func (d *Definition) Steps() []Step { return d.steps }

// StepAt returns the step at i and whether i was in range.
func (d *Definition) StepAt(i int) (Step, bool) {
	if i < 0 || i >= len(d.steps) {
		return Step{}, false
	}
	return d.steps[i], true
}

// Len returns the number of intermediate steps.
func (d *Definition) Len() int { return len(d.steps) }

// IndexOf returns the position of the step named name, or -1.
func (d *Definition) IndexOf(name string) int {
	for i, s := range d.steps {
		if s.Name == name {
			return i
		}
	}
	return -1
}
