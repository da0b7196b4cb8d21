package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/StrathCole/btc-pricefeed/pkg/logging"
	"github.com/StrathCole/btc-pricefeed/pkg/server/sources"
)

// DefaultMaxAge is how old the last streamed trade may be before Fetch
// reports the stream as failed.
const DefaultMaxAge = 15 * time.Second

// StreamConfig describes a push-based upstream.
type StreamConfig struct {
	Name      string
	URL       string // ws:// or wss://
	PricePath string // gjson path to the price inside each message
	Subscribe string // optional JSON message sent after every connect
	MaxAge    time.Duration
	Headers   map[string]string
}

var streamPresets = map[string]StreamConfig{
	"binance_ws": {
		URL:       "wss://stream.binance.com:9443/ws/btcusdt@trade",
		PricePath: "p",
	},
	"coinbase_ws": {
		URL:       "wss://ws-feed.exchange.coinbase.com",
		PricePath: "price",
		Subscribe: `{"type":"subscribe","product_ids":["BTC-USD"],"channels":["ticker"]}`,
	},
}

// ResolveStream fills blank fields from the stream preset of the same name.
func ResolveStream(cfg StreamConfig, preset string) StreamConfig {
	if preset == "" {
		preset = cfg.Name
	}
	p, ok := streamPresets[preset]
	if !ok {
		return cfg
	}
	if cfg.URL == "" {
		cfg.URL = p.URL
	}
	if cfg.PricePath == "" {
		cfg.PricePath = p.PricePath
	}
	if cfg.Subscribe == "" {
		cfg.Subscribe = p.Subscribe
	}
	return cfg
}

// Validate checks that the config describes a usable stream.
func (c StreamConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidStreamConfig)
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("%w: %s: url must be absolute ws(s): %q", ErrInvalidStreamConfig, c.Name, c.URL)
	}
	if c.PricePath == "" {
		return fmt.Errorf("%w: %s: price_path is required", ErrInvalidStreamConfig, c.Name)
	}
	if c.Subscribe != "" && !json.Valid([]byte(c.Subscribe)) {
		return fmt.Errorf("%w: %s: subscribe must be JSON", ErrInvalidStreamConfig, c.Name)
	}
	if c.MaxAge < 0 {
		return fmt.Errorf("%w: %s: max_age must be >= 0", ErrInvalidStreamConfig, c.Name)
	}
	return nil
}

// StreamSource keeps the latest price pushed by an exchange stream and
// serves it from Fetch without network I/O.
type StreamSource struct {
	*sources.BaseSource

	cfg    StreamConfig
	client *Client
	now    func() time.Time

	mu   sync.RWMutex
	last sources.Quote
}

var _ sources.Source = (*StreamSource)(nil)

// NewStreamSource creates a stream source. Call Start to connect.
func NewStreamSource(cfg StreamConfig, logger *logging.Logger) (*StreamSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultMaxAge
	}

	base := sources.NewBaseSource(cfg.Name, logger)

	headers := http.Header{}
	for k, v := range cfg.Headers {
		headers.Set(k, v)
	}

	s := &StreamSource{
		BaseSource: base,
		cfg:        cfg,
		now:        time.Now,
		client: NewClient(ClientConfig{
			URL:     cfg.URL,
			Headers: headers,
			Logger:  base.Logger(),
		}),
	}
	s.client.SetHandlers(s.handleMessage, s.subscribe)
	return s, nil
}

// Config returns the effective configuration.
func (s *StreamSource) Config() StreamConfig {
	return s.cfg
}

// Start connects in the background and reconnects until ctx is done.
func (s *StreamSource) Start(ctx context.Context) {
	go func() {
		if err := s.client.Run(ctx); err != nil {
			s.Logger().Error("Stream stopped", "error", err)
		}
	}()
}

// Close disconnects the stream.
func (s *StreamSource) Close() error {
	return s.client.Close()
}

// Fetch returns the last streamed price if it is recent enough.
func (s *StreamSource) Fetch(ctx context.Context) (sources.Quote, error) {
	start := s.now()
	q, err := s.latest(ctx)
	s.Record(q, err, s.now().Sub(start))
	return q, err
}

func (s *StreamSource) latest(ctx context.Context) (sources.Quote, error) {
	if err := ctx.Err(); err != nil {
		return sources.Quote{}, &sources.SourceError{Source: s.Name(), Reason: sources.ReasonOf(err), Err: err}
	}

	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()

	if last.FetchedAt.IsZero() {
		return sources.Quote{}, &sources.SourceError{
			Source: s.Name(),
			Reason: sources.ReasonNetwork,
			Err:    fmt.Errorf("%w: %w", sources.ErrSourceUnavailable, ErrNoStreamData),
		}
	}
	if age := s.now().Sub(last.FetchedAt); age > s.cfg.MaxAge {
		return sources.Quote{}, &sources.SourceError{
			Source: s.Name(),
			Reason: sources.ReasonNetwork,
			Err:    fmt.Errorf("%w: %w: %s old", sources.ErrSourceUnavailable, ErrStreamStale, age.Round(time.Millisecond)),
		}
	}
	return last, nil
}

func (s *StreamSource) subscribe(c *Client) error {
	if s.cfg.Subscribe == "" {
		return nil
	}
	return c.SendJSON(json.RawMessage(s.cfg.Subscribe))
}

// handleMessage ignores messages without the price field (acks, heartbeats).
func (s *StreamSource) handleMessage(msg []byte) {
	if !gjson.ValidBytes(msg) {
		return
	}
	res := gjson.GetBytes(msg, s.cfg.PricePath)
	if !res.Exists() {
		return
	}

	var raw string
	switch res.Type {
	case gjson.String:
		raw = res.Str
	case gjson.Number:
		raw = res.Raw
	default:
		return
	}

	price, err := sources.ParsePrice(raw)
	if err != nil {
		s.Logger().Debug("Ignoring invalid streamed price", "raw", raw, "error", err)
		return
	}

	s.mu.Lock()
	s.last = sources.Quote{Source: s.Name(), Price: price, FetchedAt: s.now()}
	s.mu.Unlock()
}
