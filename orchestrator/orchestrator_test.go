package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sagaforge/definition"
	"sagaforge/eventlog"
	"sagaforge/message"
	"sagaforge/saga"
)

func newRunnableSaga(t *testing.T, sagaID string, job any) (*saga.Saga, eventlog.Log) {
	t.Helper()
	log := eventlog.NewMemoryLog()
	_, err := log.StartSaga(context.Background(), sagaID, job, "", "")
	require.NoError(t, err)
	s, err := saga.Reconstruct(context.Background(), sagaID, log, nil)
	require.NoError(t, err)
	return s, log
}

func echoInvoke(v any) definition.InvokeFunc {
	return func(inv definition.Invocation) (any, error) { return v, nil }
}

func failInvoke(err error) definition.InvokeFunc {
	return func(inv definition.Invocation) (any, error) { return nil, err }
}

// S1 — happy path.
func TestOrchestratorHappyPath(t *testing.T) {
	s, log := newRunnableSaga(t, "order-1", map[string]int{"o": 1})
	def, err := definition.New([]definition.Step{
		{Name: "A", Invoke: echoInvoke("a")},
		{Name: "B", Invoke: func(inv definition.Invocation) (any, error) { return "b", nil }},
		{Name: "C", Invoke: func(inv definition.Invocation) (any, error) { return "c", nil }},
	})
	require.NoError(t, err)

	o := New(def, nil, nil)
	require.NoError(t, o.Run(context.Background(), s))

	assert.True(t, s.IsSagaCompleted())
	assert.False(t, s.IsSagaAborted())

	msgs, err := log.GetMessages(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Len(t, msgs, 8) // StartSaga + 3*(Start+End) + EndSaga
}

// S2 — required-task failure rolls back two predecessors.
func TestOrchestratorRequiredFailureCompensatesInReverseOrder(t *testing.T) {
	s, _ := newRunnableSaga(t, "order-2", map[string]any{})
	var compensated []string

	mkCompensate := func(name string) definition.CompensateFunc {
		return func(c definition.Compensation) (any, error) {
			compensated = append(compensated, name)
			return nil, nil
		}
	}

	def, err := definition.New([]definition.Step{
		{Name: "A", Invoke: echoInvoke("a"), Compensate: mkCompensate("A")},
		{Name: "B", Invoke: echoInvoke("b"), Compensate: mkCompensate("B")},
		{Name: "C", Invoke: failInvoke(errors.New("boom")), Compensate: mkCompensate("C")},
	})
	require.NoError(t, err)

	o := New(def, nil, nil)
	require.NoError(t, o.Run(context.Background(), s))

	assert.True(t, s.IsSagaAborted())
	assert.False(t, s.IsTaskCompleted("C"))
	assert.Equal(t, []string{"B", "A"}, compensated)
	assert.True(t, s.IsTerminal())
}

// S3 — crash after StartTask(B): invoke A not called, invoke B retried, no duplicate StartTask(B).
func TestOrchestratorResumesAfterCrashMidTask(t *testing.T) {
	s, log := newRunnableSaga(t, "order-3", map[string]any{})
	ctx := context.Background()

	require.NoError(t, s.StartTask(ctx, "A", nil, false))
	require.NoError(t, s.EndTask(ctx, "A", "a"))
	require.NoError(t, s.StartTask(ctx, "B", "a", false))

	aCalled := false
	def, err := definition.New([]definition.Step{
		{Name: "A", Invoke: func(inv definition.Invocation) (any, error) { aCalled = true; return "a", nil }},
		{Name: "B", Invoke: echoInvoke("b")},
		{Name: "C", Invoke: echoInvoke("c")},
	})
	require.NoError(t, err)

	o := New(def, nil, nil)
	require.NoError(t, o.Run(ctx, s))

	assert.False(t, aCalled, "A must not be re-invoked; its EndTask is already recorded")
	assert.True(t, s.IsSagaCompleted())

	msgs, err := log.GetMessages(ctx, "order-3")
	require.NoError(t, err)
	startBCount := 0
	for _, m := range msgs {
		if m.TaskID == "B" && m.Type == message.StartTask {
			startBCount++
		}
	}
	assert.Equal(t, 1, startBCount, "no duplicate StartTask(B) should be appended")
}

// S4 — optional task failure: absorbed, successor sees prev = nil.
func TestOrchestratorOptionalTaskFailureIsAbsorbed(t *testing.T) {
	s, _ := newRunnableSaga(t, "order-4", map[string]any{})
	var cPrev any
	def, err := definition.New([]definition.Step{
		{Name: "A", Invoke: echoInvoke("a")},
		{Name: "B", Invoke: failInvoke(errors.New("optional boom")), IsOptional: true},
		{Name: "C", Invoke: func(inv definition.Invocation) (any, error) { cPrev = inv.Prev; return inv.Prev, nil }},
	})
	require.NoError(t, err)

	o := New(def, nil, nil)
	require.NoError(t, o.Run(context.Background(), s))

	assert.True(t, s.IsSagaCompleted())
	assert.Nil(t, cPrev)
	assert.Nil(t, s.EndTaskData("B"))
}

// S5 — middleware veto: AbortSaga; compensate A runs; invoke B never runs.
func TestOrchestratorMiddlewareVeto(t *testing.T) {
	s, _ := newRunnableSaga(t, "order-5", map[string]any{})
	compensatedA := false
	bInvoked := false

	def, err := definition.New([]definition.Step{
		{Name: "A", Invoke: echoInvoke("a"), Compensate: func(c definition.Compensation) (any, error) {
			compensatedA = true
			return nil, nil
		}},
		{
			Name:   "B",
			Invoke: func(inv definition.Invocation) (any, error) { bInvoked = true; return nil, nil },
			Middleware: []definition.MiddlewareFunc{
				func(inv definition.Invocation) (map[string]any, bool, error) { return nil, false, nil },
			},
		},
	})
	require.NoError(t, err)

	o := New(def, nil, nil)
	require.NoError(t, o.Run(context.Background(), s))

	assert.True(t, s.IsSagaAborted())
	assert.True(t, compensatedA)
	assert.False(t, bInvoked)
	assert.False(t, s.IsTaskStarted("B"))
}

// S6 — context update: A writes {total: 10}, B reads it.
func TestOrchestratorContextPropagation(t *testing.T) {
	s, _ := newRunnableSaga(t, "order-6", map[string]any{})
	var observed any

	def, err := definition.New([]definition.Step{
		{Name: "A", Invoke: func(inv definition.Invocation) (any, error) {
			return nil, inv.Ctx.Update(context.Background(), map[string]any{"total": 10})
		}},
		{Name: "B", Invoke: func(inv definition.Invocation) (any, error) {
			v, _ := inv.Ctx.Get("total")
			observed = v
			return nil, nil
		}},
	})
	require.NoError(t, err)

	o := New(def, nil, nil)
	require.NoError(t, o.Run(context.Background(), s))

	assert.Equal(t, 10, observed)
	assert.Equal(t, map[string]any{"total": 10}, s.SagaContext())
}

func TestOrchestratorTerminalIdempotence(t *testing.T) {
	s, log := newRunnableSaga(t, "order-7", map[string]any{})
	def, err := definition.New([]definition.Step{{Name: "A", Invoke: echoInvoke("a")}})
	require.NoError(t, err)

	o := New(def, nil, nil)
	require.NoError(t, o.Run(context.Background(), s))

	before, err := log.GetMessages(context.Background(), "order-7")
	require.NoError(t, err)

	require.NoError(t, o.Run(context.Background(), s))

	after, err := log.GetMessages(context.Background(), "order-7")
	require.NoError(t, err)
	assert.Equal(t, before, after, "running an already-completed saga must perform no log writes")
}

func TestEventBusSandboxesPanickingSubscriber(t *testing.T) {
	bus := NewEventBus(nil)
	secondCalled := false

	bus.Subscribe(func(ctx context.Context, e Event) { panic("boom") })
	bus.Subscribe(func(ctx context.Context, e Event) { secondCalled = true })

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), Event{Type: SagaSucceeded, SagaID: "s1"})
	})
	assert.True(t, secondCalled, "a panicking subscriber must not block later subscribers")
}
