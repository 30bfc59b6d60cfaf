package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"go.uber.org/zap"

	"github.com/bidwin/auction-core/pkg/contracts/events"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var out map[string]any
	assert.NoError(t, c.ReadJSON(&out))
	return out
}

func TestHub_SubscribeAndBroadcast(t *testing.T) {
	hub := NewHub(zap.NewNop(), func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	a, b := dial(t, srv), dial(t, srv)
	assert.NoError(t, a.WriteJSON(ClientMsg{Type: "subscribe", LotID: "lot-1"}))
	assert.NoError(t, b.WriteJSON(ClientMsg{Type: "subscribe", LotID: "lot-2"}))
	check.Equal(t, "subscribed", readJSON(t, a)["type"])
	check.Equal(t, "subscribed", readJSON(t, b)["type"])

	hub.Broadcast(events.LotUpdate{LotID: "lot-1", Type: "bid_placed", Payload: json.RawMessage(`{"amount_cents":1200}`)})

	got := readJSON(t, a)
	check.Equal(t, "lot-1", got["lotId"])
	check.Equal(t, "bid_placed", got["type"])

	// b só assina lot-2: o próximo frame dele deve ser o pong
	assert.NoError(t, b.WriteJSON(ClientMsg{Type: "ping"}))
	check.Equal(t, "pong", readJSON(t, b)["type"])
}

func TestHub_UnsubscribeAndDisconnectCleanup(t *testing.T) {
	hub := NewHub(zap.NewNop(), func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	a := dial(t, srv)
	assert.NoError(t, a.WriteJSON(ClientMsg{Type: "subscribe", LotID: "lot-1"}))
	readJSON(t, a)
	check.Equal(t, 1, hub.Subscribers("lot-1"))

	assert.NoError(t, a.WriteJSON(ClientMsg{Type: "unsubscribe", LotID: "lot-1"}))
	assert.NoError(t, a.WriteJSON(ClientMsg{Type: "ping"}))
	readJSON(t, a) // pong garante que o unsubscribe já foi processado
	check.Equal(t, 0, hub.Subscribers("lot-1"))

	assert.NoError(t, a.WriteJSON(ClientMsg{Type: "subscribe", LotID: "lot-9"}))
	readJSON(t, a)
	_ = a.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers("lot-9") > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	check.Equal(t, 0, hub.Subscribers("lot-9"))
}
