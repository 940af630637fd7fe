// Package eventlog defines the durable, per-saga append-only event store
// contract (the Log) and provides three grounded backends: in-memory,
// SQLite document-store, and Redis Streams.
package eventlog

import (
	"context"

	"sagaforge/message"
)

// Log is the persistence contract every backend implements. The log is
// semantically blind: it never inspects message.Type beyond treating
// StartSaga as the sequence-creating operation.
type Log interface {
	// StartSaga creates a new sequence for sagaID whose first message is a
	// StartSaga carrying job (and, for nested sagas, parentSagaID/parentTaskID).
	// Fails with AlreadyExists if a sequence already exists for sagaID.
	StartSaga(ctx context.Context, sagaID string, job any, parentSagaID, parentTaskID string) (message.Message, error)

	// LogMessage appends a non-start message atomically to an existing
	// sequence. Fails with NotFound if no sequence exists for msg.SagaID.
	LogMessage(ctx context.Context, msg message.Message) error

	// GetMessages returns the ordered sequence of all messages for sagaID.
	// Fails with NotFound if no sequence exists.
	GetMessages(ctx context.Context, sagaID string) ([]message.Message, error)

	// GetActiveSagaIds returns the set of sagaIds currently present.
	GetActiveSagaIds(ctx context.Context) ([]string, error)

	// GetChildSagaIds returns the sagaIds whose StartSaga names parentSagaID
	// as parent.
	GetChildSagaIds(ctx context.Context, parentSagaID string) ([]string, error)

	// DeleteSaga removes the sequence. Idempotent: no-op if absent.
	DeleteSaga(ctx context.Context, sagaID string) error
}
