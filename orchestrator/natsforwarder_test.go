package orchestrator

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardedEventMarshalsExpectedShape(t *testing.T) {
	fe := forwardedEvent{
		Type:   string(TaskFailed),
		SagaID: "s1",
		TaskID: "A",
		Data:   map[string]any{"x": 1},
		Err:    errString(errors.New("boom")),
	}

	data, err := json.Marshal(fe)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "taskFailed", decoded["type"])
	assert.Equal(t, "s1", decoded["sagaId"])
	assert.Equal(t, "A", decoded["taskId"])
	assert.Equal(t, "boom", decoded["error"])
}

func TestErrStringNilIsEmpty(t *testing.T) {
	assert.Equal(t, "", errString(nil))
	assert.Equal(t, "boom", errString(errors.New("boom")))
}

func TestForwardedEventOmitsEmptyOptionalFields(t *testing.T) {
	fe := forwardedEvent{Type: string(SagaSucceeded), SagaID: "s2"}
	data, err := json.Marshal(fe)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	_, hasTaskID := decoded["taskId"]
	_, hasErr := decoded["error"]
	_, hasData := decoded["data"]
	assert.False(t, hasTaskID)
	assert.False(t, hasErr)
	assert.False(t, hasData)
}
