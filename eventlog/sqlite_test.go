package eventlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sagaerr "sagaforge/errors"
	"sagaforge/message"
)

func newTestSQLiteLog(t *testing.T) *SQLiteLog {
	t.Helper()
	log, err := NewSQLiteLog(context.Background(), SQLiteConfig{DSN: "file:" + t.Name() + "?mode=memory&cache=shared"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func TestSQLiteLogStartSagaAlreadyExists(t *testing.T) {
	log := newTestSQLiteLog(t)
	ctx := context.Background()

	_, err := log.StartSaga(ctx, "s1", map[string]any{"o": float64(1)}, "", "")
	require.NoError(t, err)

	_, err = log.StartSaga(ctx, "s1", nil, "", "")
	assert.True(t, sagaerr.IsAlreadyExists(err))
}

func TestSQLiteLogAppendAndRead(t *testing.T) {
	log := newTestSQLiteLog(t)
	ctx := context.Background()

	_, err := log.StartSaga(ctx, "s1", nil, "", "")
	require.NoError(t, err)

	m := message.NewStartTask("s1", "A", "in", false)
	require.NoError(t, log.LogMessage(ctx, m))

	msgs, err := log.GetMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, message.StartTask, msgs[1].Type)
}

func TestSQLiteLogNotFound(t *testing.T) {
	log := newTestSQLiteLog(t)
	ctx := context.Background()

	_, err := log.GetMessages(ctx, "missing")
	assert.True(t, sagaerr.IsNotFound(err))

	err = log.LogMessage(ctx, message.New("missing", message.EndTask, "A", nil, nil))
	assert.True(t, sagaerr.IsNotFound(err))
}

func TestSQLiteLogChildSagaIdsUsesParentIndex(t *testing.T) {
	log := newTestSQLiteLog(t)
	ctx := context.Background()

	_, err := log.StartSaga(ctx, "parent", nil, "", "")
	require.NoError(t, err)
	_, err = log.StartSaga(ctx, "child-1", nil, "parent", "A")
	require.NoError(t, err)

	children, err := log.GetChildSagaIds(ctx, "parent")
	require.NoError(t, err)
	assert.Equal(t, []string{"child-1"}, children)
}

func TestSQLiteLogDeleteSagaIsIdempotent(t *testing.T) {
	log := newTestSQLiteLog(t)
	ctx := context.Background()

	assert.NoError(t, log.DeleteSaga(ctx, "never-existed"))

	_, err := log.StartSaga(ctx, "s1", nil, "", "")
	require.NoError(t, err)
	require.NoError(t, log.DeleteSaga(ctx, "s1"))
	require.NoError(t, log.DeleteSaga(ctx, "s1"))

	_, err = log.GetMessages(ctx, "s1")
	assert.True(t, sagaerr.IsNotFound(err))
}
