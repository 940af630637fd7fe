package eventlog

import (
	"context"
	"sync"
	"time"

	sagaerr "sagaforge/errors"
	"sagaforge/message"
)

// MemoryLog is a per-process Log backend: a mutex-guarded map from sagaId to
// its ordered message slice. Grounded on the teacher's in-memory event
// store, adapted from a versioned-aggregate model to the saga engine's
// simpler "sequence exists or not" uniqueness check.
type MemoryLog struct {
	mu     sync.Mutex
	sagas  map[string][]message.Message
	parent map[string]string // sagaID -> parentSagaID, only set when non-empty
}

// NewMemoryLog constructs an empty in-memory Log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		sagas:  make(map[string][]message.Message),
		parent: make(map[string]string),
	}
}

func (m *MemoryLog) StartSaga(_ context.Context, sagaID string, job any, parentSagaID, parentTaskID string) (message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sagas[sagaID]; exists {
		return message.Message{}, sagaerr.NewAlreadyExists(sagaID)
	}

	msg := message.NewStartSaga(sagaID, job, parentSagaID, parentTaskID)
	m.sagas[sagaID] = []message.Message{msg}
	if parentSagaID != "" {
		m.parent[sagaID] = parentSagaID
	}
	return msg, nil
}

func (m *MemoryLog) LogMessage(_ context.Context, msg message.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seq, exists := m.sagas[msg.SagaID]
	if !exists {
		return sagaerr.NewNotFound(msg.SagaID)
	}
	m.sagas[msg.SagaID] = append(seq, msg)
	return nil
}

func (m *MemoryLog) GetMessages(_ context.Context, sagaID string) ([]message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seq, exists := m.sagas[sagaID]
	if !exists {
		return nil, sagaerr.NewNotFound(sagaID)
	}
	out := make([]message.Message, len(seq))
	copy(out, seq)
	return out, nil
}

func (m *MemoryLog) GetActiveSagaIds(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.sagas))
	for id := range m.sagas {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *MemoryLog) GetChildSagaIds(_ context.Context, parentSagaID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var children []string
	for id, parent := range m.parent {
		if parent == parentSagaID {
			children = append(children, id)
		}
	}
	return children, nil
}

func (m *MemoryLog) DeleteSaga(_ context.Context, sagaID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sagas, sagaID)
	delete(m.parent, sagaID)
	return nil
}

// SetLastMessageTimestampForTest backdates sagaID's last message in place.
// It exists only to let tests exercise age-based retention policies
// (cleanup.Service) without sleeping; production code never calls it.
func (m *MemoryLog) SetLastMessageTimestampForTest(sagaID string, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := m.sagas[sagaID]
	if len(seq) == 0 {
		return
	}
	seq[len(seq)-1].Timestamp = ts
}

var _ Log = (*MemoryLog)(nil)
