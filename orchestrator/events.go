package orchestrator

import (
	"context"

	"sagaforge/logging"
)

// EventType tags one of the orchestrator's emitted event kinds.
type EventType string

const (
	SagaStarted           EventType = "sagaStarted"
	SagaSucceeded         EventType = "sagaSucceeded"
	SagaFailed            EventType = "sagaFailed"
	SagaAborted           EventType = "sagaAborted"
	TaskStarted           EventType = "taskStarted"
	TaskSucceeded         EventType = "taskSucceeded"
	TaskFailed            EventType = "taskFailed"
	OptionalTaskFailed    EventType = "optionalTaskFailed"
	CompensationStarted   EventType = "compensationStarted"
	CompensationSucceeded EventType = "compensationSucceeded"
	CompensationFailed    EventType = "compensationFailed"
)

// Event is one entry on the orchestrator's synchronous event stream.
type Event struct {
	Type   EventType
	SagaID string
	TaskID string
	Data   any
	Err    error
}

// Subscriber observes Events in registration order. A subscriber must not
// block the orchestrator for long; it runs synchronously on the calling
// goroutine.
type Subscriber func(ctx context.Context, e Event)

// EventBus is an ordered list of observers invoked synchronously. A failing
// subscriber (panic or otherwise) is sandboxed: it is trapped, logged, and
// never propagates back into the orchestrator's run loop.
type EventBus struct {
	subscribers []Subscriber
	logger      logging.ILogger
}

// NewEventBus constructs an empty bus.
func NewEventBus(logger logging.ILogger) *EventBus {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &EventBus{logger: logger}
}

// Subscribe registers s; subscribers are invoked in registration order.
func (b *EventBus) Subscribe(s Subscriber) {
	b.subscribers = append(b.subscribers, s)
}

// Publish delivers e to every subscriber in order, recovering from panics
// and sandboxing them so one bad subscriber never affects saga progress or
// later subscribers.
func (b *EventBus) Publish(ctx context.Context, e Event) {
	for _, sub := range b.subscribers {
		b.deliver(ctx, sub, e)
	}
}

func (b *EventBus) deliver(ctx context.Context, sub Subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn(ctx, "subscriber panicked",
				logging.String("saga_id", e.SagaID),
				logging.String("event_type", string(e.Type)),
				logging.Any("recovered", r),
			)
		}
	}()
	sub(ctx, e)
}
