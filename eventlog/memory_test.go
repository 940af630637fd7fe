package eventlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sagaerr "sagaforge/errors"
	"sagaforge/message"
)

func TestMemoryLogStartSagaAlreadyExists(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()

	_, err := log.StartSaga(ctx, "s1", map[string]int{"o": 1}, "", "")
	require.NoError(t, err)

	_, err = log.StartSaga(ctx, "s1", nil, "", "")
	assert.True(t, sagaerr.IsAlreadyExists(err))
}

func TestMemoryLogAppendMonotonicity(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()
	_, err := log.StartSaga(ctx, "s1", nil, "", "")
	require.NoError(t, err)

	m := message.NewStartTask("s1", "A", nil, false)
	require.NoError(t, log.LogMessage(ctx, m))

	msgs, err := log.GetMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, m.ID, msgs[len(msgs)-1].ID)
}

func TestMemoryLogNotFound(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()

	_, err := log.GetMessages(ctx, "missing")
	assert.True(t, sagaerr.IsNotFound(err))

	err = log.LogMessage(ctx, message.New("missing", message.EndTask, "A", nil, nil))
	assert.True(t, sagaerr.IsNotFound(err))
}

func TestMemoryLogChildSagaIds(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()

	_, err := log.StartSaga(ctx, "parent", nil, "", "")
	require.NoError(t, err)
	_, err = log.StartSaga(ctx, "child-1", nil, "parent", "A")
	require.NoError(t, err)
	_, err = log.StartSaga(ctx, "child-2", nil, "parent", "B")
	require.NoError(t, err)
	_, err = log.StartSaga(ctx, "unrelated", nil, "", "")
	require.NoError(t, err)

	children, err := log.GetChildSagaIds(ctx, "parent")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"child-1", "child-2"}, children)
}

func TestMemoryLogDeleteSagaIsIdempotent(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()

	assert.NoError(t, log.DeleteSaga(ctx, "never-existed"))

	_, err := log.StartSaga(ctx, "s1", nil, "", "")
	require.NoError(t, err)
	require.NoError(t, log.DeleteSaga(ctx, "s1"))
	require.NoError(t, log.DeleteSaga(ctx, "s1"))

	_, err = log.GetMessages(ctx, "s1")
	assert.True(t, sagaerr.IsNotFound(err))
}

func TestMemoryLogGetActiveSagaIds(t *testing.T) {
	log := NewMemoryLog()
	ctx := context.Background()

	_, err := log.StartSaga(ctx, "s1", nil, "", "")
	require.NoError(t, err)
	_, err = log.StartSaga(ctx, "s2", nil, "", "")
	require.NoError(t, err)

	ids, err := log.GetActiveSagaIds(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"s1", "s2"}, ids)
}
