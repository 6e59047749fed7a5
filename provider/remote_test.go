package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hkdb/agentcore/message"
)

func TestRemoteAdapterStreamDecodesNDJSONEvents(t *testing.T) {
	var gotEnvelope remoteEnvelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotEnvelope))

		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		require.NoError(t, enc.Encode(message.TextDeltaEvent("hi")))
		require.NoError(t, enc.Encode(message.StopEvent(message.StopEndTurn, nil)))
	}))
	defer srv.Close()

	adapter := NewRemoteAdapter(srv.URL, zap.NewNop().Sugar())
	assert.Equal(t, "remote", adapter.Name())

	history := []message.Message{
		message.TextOnly(message.RoleSystem, "you are an agent"),
		message.TextOnly(message.RoleUser, "do the thing"),
	}
	handle, err := adapter.Stream(context.Background(), history)
	require.NoError(t, err)
	defer handle.Close()

	var events []message.StreamEvent
	for ev := range handle.Events() {
		events = append(events, ev)
	}

	require.Len(t, events, 2)
	assert.Equal(t, message.EventTextDelta, events[0].Kind)
	assert.Equal(t, "hi", events[0].TextDelta)
	assert.Equal(t, message.EventStop, events[1].Kind)
	assert.Equal(t, message.StopEndTurn, events[1].StopReason)

	assert.Equal(t, "do the thing", gotEnvelope.Task)
	require.Len(t, gotEnvelope.RelevantMessages, 1)
	assert.Equal(t, message.RoleSystem, gotEnvelope.RelevantMessages[0].Role)
}

func TestRemoteAdapterStreamSurfacesNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	adapter := NewRemoteAdapter(srv.URL, zap.NewNop().Sugar())
	_, err := adapter.Stream(context.Background(), []message.Message{message.TextOnly(message.RoleUser, "hi")})
	require.Error(t, err)
}

func TestRemoteAdapterStreamRejectsEmptyHistory(t *testing.T) {
	adapter := NewRemoteAdapter("http://unused.invalid", zap.NewNop().Sugar())
	_, err := adapter.Stream(context.Background(), nil)
	require.Error(t, err)
}
