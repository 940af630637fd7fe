// Package message defines the saga engine's immutable event record: the
// unit of persistence and replay every Log, State projection, and
// orchestrator operation is built from.
package message

import (
	"time"

	"github.com/google/uuid"
)

// Type tags a Message with one of the seven (plus StartSaga) wire shapes a
// saga's event stream can contain. Using a concrete enum over dynamic
// payloads (the source's union-of-objects approach) lets State validate
// each incoming Message with a single type switch.
type Type string

const (
	StartSaga              Type = "StartSaga"
	EndSaga                Type = "EndSaga"
	AbortSaga              Type = "AbortSaga"
	StartTask              Type = "StartTask"
	EndTask                Type = "EndTask"
	StartCompensatingTask  Type = "StartCompensatingTask"
	EndCompensatingTask    Type = "EndCompensatingTask"
	UpdateSagaContext      Type = "UpdateSagaContext"
)

// Message is an immutable saga event. TaskID is required iff Type is
// task-scoped; ParentSagaID/ParentTaskID are only meaningful on StartSaga.
type Message struct {
	ID           string
	SagaID       string
	Type         Type
	TaskID       string
	Data         any
	Metadata     map[string]any
	ParentSagaID string
	ParentTaskID string
	Timestamp    time.Time
}

// IsOptional reads the isOptional metadata flag a StartTask message carries.
func (m Message) IsOptional() bool {
	if m.Metadata == nil {
		return false
	}
	v, ok := m.Metadata["isOptional"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IsTaskScoped reports whether Type requires a non-empty TaskID.
func (m Message) IsTaskScoped() bool {
	switch m.Type {
	case StartTask, EndTask, StartCompensatingTask, EndCompensatingTask:
		return true
	default:
		return false
	}
}

// New stamps a fresh uuid id and the current time and returns the
// constructed Message. Ordering within a saga is the ingest order the Log
// assigns on append, not this timestamp — it exists for display/auditing.
func New(sagaID string, typ Type, taskID string, data any, metadata map[string]any) Message {
	return Message{
		ID:        uuid.NewString(),
		SagaID:    sagaID,
		Type:      typ,
		TaskID:    taskID,
		Data:      data,
		Metadata:  metadata,
		Timestamp: time.Now(),
	}
}

// NewStartSaga constructs a StartSaga message, optionally carrying the
// nested-saga parent link.
func NewStartSaga(sagaID string, job any, parentSagaID, parentTaskID string) Message {
	m := New(sagaID, StartSaga, "", job, nil)
	m.ParentSagaID = parentSagaID
	m.ParentTaskID = parentTaskID
	return m
}

// NewStartTask constructs a StartTask message, setting the isOptional
// metadata flag the orchestrator's failure policy consults.
func NewStartTask(sagaID, taskID string, data any, isOptional bool) Message {
	return New(sagaID, StartTask, taskID, data, map[string]any{"isOptional": isOptional})
}
