package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/StrathCole/btc-pricefeed/pkg/logging"
	"github.com/StrathCole/btc-pricefeed/pkg/server/feed"
	"github.com/StrathCole/btc-pricefeed/pkg/server/sources"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsSendBuffer = 16
)

// Client message types
const (
	MsgSubscribe    = "subscribe"
	MsgUnsubscribe  = "unsubscribe"
	MsgPing         = "ping"
	MsgPong         = "pong"
	MsgSubscribed   = "subscribed"
	MsgUnsubscribed = "unsubscribed"
	MsgError        = "error"
	MsgPriceUpdate  = "price_update"
)

// WebSocketServer streams every freshly aggregated result of one feed.
// Clients receive updates from connect until they unsubscribe.
type WebSocketServer struct {
	addr     string
	symbol   string
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]struct{}

	updates chan feed.Result

	ctx    context.Context
	cancel context.CancelFunc
}

type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	server *WebSocketServer

	mu         sync.RWMutex
	subscribed bool
}

// WebSocketMessage is sent by clients. Symbols is optional on subscribe;
// when present every entry must name the served instrument.
type WebSocketMessage struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols,omitempty"`
}

// ControlMessage answers a client message.
type ControlMessage struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol,omitempty"`
	Error  string `json:"error,omitempty"`
}

// PriceUpdateMessage is pushed for every new result.
type PriceUpdateMessage struct {
	Type      string   `json:"type"`
	Timestamp string   `json:"timestamp"`
	Symbol    string   `json:"symbol"`
	Price     string   `json:"price"`
	Sources   []string `json:"sources"`
	FetchedAt string   `json:"fetched_at"`
}

// NewWebSocketServer creates a server for the instrument symbol.
func NewWebSocketServer(addr, symbol string, logger *logging.Logger) *WebSocketServer {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	if symbol == "" {
		symbol = feed.DefaultSymbol
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &WebSocketServer{
		addr:   addr,
		symbol: sources.NormalizeSymbol(symbol),
		logger: logger.With("component", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Read-only public price stream.
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
		updates: make(chan feed.Result, 100),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Handler returns the HTTP handler serving /ws.
func (s *WebSocketServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Run starts broadcasting queued updates until Stop is called.
func (s *WebSocketServer) Run() {
	go s.broadcastLoop()
}

// Start serves /ws and blocks until ctx is done or Stop is called.
func (s *WebSocketServer) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.Run()
	s.logger.Info("Starting WebSocket server", "addr", s.addr, "symbol", s.symbol)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		s.cancel()
	case <-s.ctx.Done():
	case serveErr = <-errCh:
		s.cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.closeClients()
	if err := server.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

// Stop stops the broadcaster and, if started, the listener.
func (s *WebSocketServer) Stop() {
	s.cancel()
}

// SendUpdate queues a freshly computed result. Results without a price are
// not streamed.
func (s *WebSocketServer) SendUpdate(result feed.Result) {
	if !result.Available() {
		return
	}
	select {
	case s.updates <- result:
	case <-time.After(100 * time.Millisecond):
		s.logger.Warn("Update channel full, dropping price update")
	}
}

// ClientCount returns the number of connected clients.
func (s *WebSocketServer) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *WebSocketServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection", "error", err)
		return
	}

	c := &wsClient{
		conn:       conn,
		send:       make(chan []byte, wsSendBuffer),
		server:     s,
		subscribed: true,
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	go c.writeLoop()
	go c.readLoop()

	s.logger.Debug("Client connected", "remote", conn.RemoteAddr())
}

func (s *WebSocketServer) removeClient(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

// closeClients closes every connection; each readLoop then removes its client.
func (s *WebSocketServer) closeClients() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		_ = c.conn.Close()
	}
}

func (s *WebSocketServer) broadcastLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case result := <-s.updates:
			s.broadcast(result)
		}
	}
}

func (s *WebSocketServer) broadcast(result feed.Result) {
	data, err := json.Marshal(PriceUpdateMessage{
		Type:      MsgPriceUpdate,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Symbol:    result.Symbol,
		Price:     result.Price.String(),
		Sources:   result.Sources,
		FetchedAt: result.FetchedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.Error("Failed to marshal price update", "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c := range s.clients {
		if c.isSubscribed() {
			c.queue(data)
		}
	}
}

func (c *wsClient) isSubscribed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribed
}

func (c *wsClient) setSubscribed(v bool) {
	c.mu.Lock()
	c.subscribed = v
	c.mu.Unlock()
}

// queue never blocks; a slow client misses updates instead of stalling others.
// Callers hold the server lock, so send is not closed underneath them.
func (c *wsClient) queue(data []byte) {
	select {
	case c.send <- data:
	default:
		c.server.logger.Warn("Client send buffer full, skipping message", "remote", c.conn.RemoteAddr())
	}
}

func (c *wsClient) reply(msg ControlMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.server.mu.RLock()
	defer c.server.mu.RUnlock()
	if _, ok := c.server.clients[c]; ok {
		c.queue(data)
	}
}

func (c *wsClient) writeLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.server.logger.Debug("Write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readLoop() {
	defer func() {
		c.server.removeClient(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Warn("WebSocket read failed", "error", err)
			}
			return
		}
		c.handleMessage(data)
	}
}

func (c *wsClient) handleMessage(data []byte) {
	var msg WebSocketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(ControlMessage{Type: MsgError, Error: "invalid message"})
		return
	}

	symbol := c.server.symbol
	switch msg.Type {
	case MsgSubscribe:
		for _, raw := range msg.Symbols {
			if raw == "*" {
				continue
			}
			if sources.NormalizeSymbol(raw) != symbol {
				c.reply(ControlMessage{
					Type:  MsgError,
					Error: fmt.Sprintf("symbol %s is not served, only %s", raw, symbol),
				})
				return
			}
		}
		c.setSubscribed(true)
		c.reply(ControlMessage{Type: MsgSubscribed, Symbol: symbol})
	case MsgUnsubscribe:
		c.setSubscribed(false)
		c.reply(ControlMessage{Type: MsgUnsubscribed, Symbol: symbol})
	case MsgPing:
		c.reply(ControlMessage{Type: MsgPong})
	default:
		c.reply(ControlMessage{Type: MsgError, Error: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}
