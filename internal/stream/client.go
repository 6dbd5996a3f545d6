package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/offerwatch/internal/model"
)

// ClientConfig configures a stream Client.
type ClientConfig struct {
	URL          string        // ws://host:port/stream, optionally with ?account=
	WriteTimeout time.Duration // deadline for control frames
	BufferSize   int           // Events channel capacity
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		WriteTimeout: 5 * time.Second,
		BufferSize:   100,
	}
}

// Client consumes a new-offer stream.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	events chan model.NewOfferEvent
	errors chan error
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

// Dial connects to a stream endpoint.
func Dial(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultClientConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}

	header := http.Header{}
	header.Set("Accept", "application/json")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		logger: logger,
		conn:   conn,
		events: make(chan model.NewOfferEvent, cfg.BufferSize),
		errors: make(chan error, 1),
		done:   make(chan struct{}),
	}
	go c.readLoop()

	logger.Debug("stream connected", "url", cfg.URL)
	return c, nil
}

// Events returns decoded events. It is closed when the connection ends.
func (c *Client) Events() <-chan model.NewOfferEvent {
	return c.events
}

// Errors receives at most one terminal read error.
func (c *Client) Errors() <-chan error {
	return c.errors
}

// Close closes the connection. Subsequent calls are no-ops.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)

	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.cfg.WriteTimeout),
	)
	return c.conn.Close()
}

func (c *Client) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-c.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					select {
					case c.errors <- err:
					default:
					}
				}
			}
			return
		}

		var ev model.NewOfferEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Warn("invalid stream frame", "error", err, "size", len(data))
			continue
		}

		select {
		case c.events <- ev:
		case <-c.done:
			return
		default:
			c.logger.Warn("event buffer full, dropping event", "offer", ev.Offer.ID)
		}
	}
}
