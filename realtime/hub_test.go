package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, *httptest.Server, context.CancelFunc) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, srv, cancel
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestHub_BroadcastFiltersByTree(t *testing.T) {
	hub, srv, _ := startHub(t)
	all := dial(t, srv, "")
	onlyTwo := dial(t, srv, "?tree_id=2")
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 5*time.Millisecond)

	hub.Broadcast(Event{Type: EventTreeUpdated, TreeID: 1})
	hub.Broadcast(Event{Type: EventExportReady, TreeID: 2, Status: "done"})

	first := readEvent(t, all)
	assert.Equal(t, EventTreeUpdated, first.Type)
	assert.NotZero(t, first.Timestamp)
	assert.Equal(t, EventExportReady, readEvent(t, all).Type)

	got := readEvent(t, onlyTwo)
	assert.Equal(t, EventExportReady, got.Type, "tree 1 event was filtered out")
	assert.Equal(t, uint(2), got.TreeID)
}

func TestHub_UnregistersOnClose(t *testing.T) {
	hub, srv, _ := startHub(t)
	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_ShutdownDisconnects(t *testing.T) {
	hub, srv, cancel := startHub(t)
	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, hub.Clients())
}

func TestServeWS_BadTreeID(t *testing.T) {
	_, srv, _ := startHub(t)
	resp, err := http.Get(srv.URL + "?tree_id=abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
