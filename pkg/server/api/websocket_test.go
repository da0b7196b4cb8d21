package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/btc-pricefeed/pkg/server/feed"
)

func dialWS(t *testing.T, ws *WebSocketServer) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(ws.Handler())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return ws.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	return conn, func() {
		_ = conn.Close()
		srv.Close()
	}
}

func TestWebSocketServer_BroadcastsResults(t *testing.T) {
	ws := NewWebSocketServer(":0", "BTC/USD", nil)
	ws.Run()
	defer ws.Stop()

	conn, cleanup := dialWS(t, ws)
	defer cleanup()

	// Absent results are not streamed.
	ws.SendUpdate(feed.Result{Symbol: "BTC/USD"})
	ws.SendUpdate(priceResult("61100.5"))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg PriceUpdateMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "price_update", msg.Type)
	assert.Equal(t, "BTC/USD", msg.Symbol)
	assert.Equal(t, "61100.5", msg.Price)
	assert.Equal(t, []string{"binance", "coinbase"}, msg.Sources)
}

func TestWebSocketServer_PingAndSubscriptions(t *testing.T) {
	ws := NewWebSocketServer(":0", "BTC/USD", nil)
	ws.Run()
	defer ws.Stop()

	conn, cleanup := dialWS(t, ws)
	defer cleanup()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var reply ControlMessage
	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: MsgPing}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, MsgPong, reply.Type)

	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: MsgUnsubscribe}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, MsgUnsubscribed, reply.Type)

	// Not delivered; the next frame is the subscribe reply.
	ws.SendUpdate(priceResult("61000"))
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: MsgSubscribe, Symbols: []string{"btc/usdt"}}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, MsgSubscribed, reply.Type)
	assert.Equal(t, "BTC/USD", reply.Symbol)

	ws.SendUpdate(priceResult("62000"))
	var update PriceUpdateMessage
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, MsgPriceUpdate, update.Type)
	assert.Equal(t, "62000", update.Price)
}

func TestWebSocketServer_RejectsOtherSymbols(t *testing.T) {
	ws := NewWebSocketServer(":0", "BTC/USD", nil)
	ws.Run()
	defer ws.Stop()

	conn, cleanup := dialWS(t, ws)
	defer cleanup()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var reply ControlMessage
	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: MsgSubscribe, Symbols: []string{"ETH/USD"}}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, MsgError, reply.Type)
	assert.Contains(t, reply.Error, "ETH/USD")
	assert.Contains(t, reply.Error, "BTC/USD")

	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: "history"}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, MsgError, reply.Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "invalid message", reply.Error)

	// A rejected subscribe leaves the default subscription in place.
	ws.SendUpdate(priceResult("61500"))
	var update PriceUpdateMessage
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, "61500", update.Price)
}
