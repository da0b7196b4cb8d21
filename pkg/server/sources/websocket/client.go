package websocket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/StrathCole/btc-pricefeed/pkg/logging"
)

// Client represents a WebSocket client with reconnection support
type Client struct {
	url           string
	conn          *websocket.Conn
	connMu        sync.Mutex
	reconnectWait time.Duration
	maxWait       time.Duration
	maxRetries    int
	pingInterval  time.Duration
	pongWait      time.Duration
	writeWait     time.Duration
	logger        *logging.Logger
	headers       http.Header // Custom headers for WebSocket handshake

	ctx    context.Context
	cancel context.CancelFunc

	// Handlers
	onMessage func([]byte)
	onConnect func(*Client) error

	// State
	connected bool
	stateMu   sync.RWMutex
}

// ClientConfig holds WebSocket client configuration
type ClientConfig struct {
	URL           string
	ReconnectWait time.Duration
	MaxRetries    int // <= 0 retries forever
	PingInterval  time.Duration
	PongWait      time.Duration
	WriteWait     time.Duration
	Headers       http.Header
	Logger        *logging.Logger
}

// NewClient creates a new WebSocket client
func NewClient(cfg ClientConfig) *Client {
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = time.Second
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongWait == 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.WriteWait == 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNoopLogger()
	}

	return &Client{
		url:           cfg.URL,
		reconnectWait: cfg.ReconnectWait,
		maxWait:       60 * time.Second,
		maxRetries:    cfg.MaxRetries,
		pingInterval:  cfg.PingInterval,
		pongWait:      cfg.PongWait,
		writeWait:     cfg.WriteWait,
		logger:        cfg.Logger,
		headers:       cfg.Headers,
	}
}

// SetHandlers sets the event handlers. onConnect runs after every
// (re)connect, e.g. to send a subscription.
func (c *Client) SetHandlers(onMessage func([]byte), onConnect func(*Client) error) {
	c.onMessage = onMessage
	c.onConnect = onConnect
}

// Run connects and keeps reconnecting until ctx is done or Close is called.
func (c *Client) Run(ctx context.Context) error {
	c.connMu.Lock()
	c.ctx, c.cancel = context.WithCancel(ctx)
	runCtx := c.ctx
	c.connMu.Unlock()

	wait := c.reconnectWait
	retries := 0
	for {
		conn, err := c.dial(runCtx)
		if err == nil {
			retries = 0
			wait = c.reconnectWait
			c.serve(runCtx, conn)
		} else {
			retries++
			if c.maxRetries > 0 && retries >= c.maxRetries {
				return fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, err)
			}
			c.logger.Warn("WebSocket connection failed, retrying", "error", err, "retry", retries, "wait", wait)
		}

		select {
		case <-runCtx.Done():
			return nil
		case <-time.After(wait):
		}
		wait *= 2
		if wait > c.maxWait {
			wait = c.maxWait
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, c.url, c.headers)
	if err != nil {
		return nil, err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.setConnected(true)

	c.logger.Info("WebSocket connected", "url", c.url)

	if c.onConnect != nil {
		if err := c.onConnect(c); err != nil {
			c.drop()
			return nil, err
		}
	}
	return conn, nil
}

// serve reads until the connection fails or ctx is done.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	defer c.drop()

	go c.pingPump(conn, done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("WebSocket disconnected, reconnecting", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))

		if c.onMessage != nil {
			c.onMessage(message)
		}
	}
}

// SendJSON writes a JSON message on the current connection.
func (c *Client) SendJSON(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("%w", ErrNotConnected)
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.conn.WriteJSON(v)
}

// Close stops Run and closes the connection.
func (c *Client) Close() error {
	c.connMu.Lock()
	cancel := c.cancel
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.setConnected(false)

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.writeWait))
		return conn.Close()
	}
	return nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.connected
}

func (c *Client) setConnected(connected bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.connected = connected
}

func (c *Client) drop() {
	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
	c.setConnected(false)
}

// pingPump sends periodic ping messages
func (c *Client) pingPump(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			// Shares the write lock with SendJSON.
			c.connMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
			c.connMu.Unlock()

			if err != nil {
				c.logger.Warn("WebSocket ping failed", "error", err)
				return
			}
		}
	}
}
