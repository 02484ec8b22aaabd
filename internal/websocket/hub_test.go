package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/raaihank/lvs-console/internal/logger"
)

func startHub(t *testing.T, cfg *HubConfig) (*Hub, *httptest.Server, context.CancelFunc, <-chan struct{}) {
	t.Helper()
	hub := NewHub(cfg, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	return hub, srv, cancel, stopped
}

func dial(t *testing.T, hub *Hub, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	want := hub.GetStats().TotalConnections + 1
	require.Eventually(t, func() bool {
		return hub.GetStats().TotalConnections >= want
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestHubBroadcastAndShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub, srv, cancel, stopped := startHub(t, &HubConfig{BroadcastSelection: true})
	conn := dial(t, hub, srv)

	hub.Publish(string(EventTypeCellsChanged), []string{"inv"})
	ev := readEvent(t, conn)
	assert.Equal(t, EventTypeCellsChanged, ev.Type)
	assert.Equal(t, []any{"inv"}, ev.Data)

	cancel()
	<-stopped

	// the hub closes the socket on shutdown
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	conn.Close()
	srv.Close()
}

func TestHubSubscription(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub, srv, cancel, stopped := startHub(t, &HubConfig{BroadcastSelection: true})
	conn := dial(t, hub, srv)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "subscribe",
		"data": map[string]any{"events": []string{string(EventTypeRulesChanged)}},
	}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	assert.Equal(t, eventTypePong, readEvent(t, conn).Type)

	hub.Publish(string(EventTypeCellsChanged), []string{"inv"})
	hub.Publish(string(EventTypeRulesChanged), []string{"Open Circuit"})
	assert.Equal(t, EventTypeRulesChanged, readEvent(t, conn).Type)

	cancel()
	<-stopped
	conn.Close()
	srv.Close()
}

func TestShouldBroadcastEvent(t *testing.T) {
	hub := NewHub(&HubConfig{BroadcastUploads: true, BroadcastRuns: false}, logger.NewNop())

	assert.True(t, hub.shouldBroadcastEvent(EventTypeGDSCells))
	assert.True(t, hub.shouldBroadcastEvent(EventTypeTextUploaded))
	assert.False(t, hub.shouldBroadcastEvent(EventTypeRun))
	assert.False(t, hub.shouldBroadcastEvent(EventTypeReset))
	assert.False(t, hub.shouldBroadcastEvent("unknown"))

	assert.False(t, NewHub(nil, logger.NewNop()).shouldBroadcastEvent(EventTypeGDSCells))
}

func TestCheckOrigin(t *testing.T) {
	hub := NewHub(&HubConfig{AllowedOrigins: []string{"http://localhost:5173"}}, logger.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, hub.checkOrigin(req))

	req.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, hub.checkOrigin(req))

	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, hub.checkOrigin(req))
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	assert.Equal(t, "10.0.0.1", getClientIP(req))
}
