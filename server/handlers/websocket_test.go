package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamiurg/mountaineers-assistant-sub000/bus"
	"github.com/dreamiurg/mountaineers-assistant-sub000/cache"
	"github.com/dreamiurg/mountaineers-assistant-sub000/orchestrator"
)

func dialWS(t *testing.T, f *fakeOrchestrator) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(NewWebSocketHandler(discard, f))
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestWebSocketHandler_RelaysUpdates(t *testing.T) {
	f := newFakeOrchestrator()
	conn := dialWS(t, f)

	first := readJSON(t, conn)
	assert.Equal(t, "status-response", first["type"])
	assert.Equal(t, false, first["inProgress"])

	f.updates <- orchestrator.Update{
		RunID:    "run-1",
		State:    orchestrator.StateInProgress,
		Progress: &cache.RefreshProgress{Total: 2, Completed: 1, Stage: cache.StageProcessing},
	}
	update := readJSON(t, conn)
	assert.Equal(t, TypeRefreshUpdate, update["type"])
	assert.Equal(t, "run-1", update["runId"])
	assert.Equal(t, "in-progress", update["state"])
	progress, ok := update["progress"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "processing", progress["stage"])
}

func TestWebSocketHandler_AnswersStatusRequests(t *testing.T) {
	f := newFakeOrchestrator()
	f.status = bus.StatusResponse{Success: true, InProgress: true, Progress: &cache.RefreshProgress{Total: 4}}
	conn := dialWS(t, f)
	readJSON(t, conn) // initial status

	req, err := bus.Encode(bus.StatusRequest{})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, req))
	reply := readJSON(t, conn)
	assert.Equal(t, "status-response", reply["type"])
	assert.Equal(t, true, reply["inProgress"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"collect","runId":"x","existingUids":[]}`)))
	reply = readJSON(t, conn)
	assert.Equal(t, TypeError, reply["type"])
	assert.Contains(t, reply["error"], "unsupported")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"launch-rockets"}`)))
	reply = readJSON(t, conn)
	assert.Equal(t, TypeError, reply["type"])
}

func TestWebSocketHandler_StopsWatchingOnClose(t *testing.T) {
	f := newFakeOrchestrator()
	conn := dialWS(t, f)
	readJSON(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	select {
	case <-f.stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("watch was not released")
	}
}
