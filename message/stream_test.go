package message

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamEventJSONRoundTrip(t *testing.T) {
	ev := StreamEvent{
		Kind:         EventToolCallEnd,
		ToolCallID:   "call-1",
		ToolCallName: "search",
		ToolCallArgs: map[string]any{"query": "weather"},
	}

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var out StreamEvent
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, ev.Kind, out.Kind)
	assert.Equal(t, ev.ToolCallID, out.ToolCallID)
	assert.Equal(t, ev.ToolCallName, out.ToolCallName)
	assert.Nil(t, out.Err)
}

func TestStreamEventJSONRoundTripPreservesError(t *testing.T) {
	ev := StopEvent(StopError, errors.New("upstream disconnected"))

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(data), "upstream disconnected")

	var out StreamEvent
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, EventStop, out.Kind)
	assert.Equal(t, StopError, out.StopReason)
	require.Error(t, out.Err)
	assert.Equal(t, "upstream disconnected", out.Err.Error())
}

func TestStreamEventJSONOmitsErrorWhenNil(t *testing.T) {
	ev := StopEvent(StopEndTurn, nil)

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var out StreamEvent
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Nil(t, out.Err)
	assert.Equal(t, StopEndTurn, out.StopReason)
}
