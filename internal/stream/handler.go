package stream

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/offerwatch/internal/model"
	"github.com/rickgao/offerwatch/internal/notify"
)

// Config configures the stream handler.
type Config struct {
	PingInterval time.Duration // heartbeat period
	WriteTimeout time.Duration // deadline for each frame
	BufferSize   int           // per-connection observer queue
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
		BufferSize:   256,
	}
}

// Handler upgrades requests to WebSocket and streams new-offer events.
// The optional "account" query parameter restricts the stream to one
// account key.
type Handler struct {
	cfg      Config
	events   *notify.Broadcaster[model.NewOfferEvent]
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool

	seq  atomic.Uint64
	sent atomic.Int64
}

// NewHandler creates a Handler fed by events.
func NewHandler(cfg Config, events *notify.Broadcaster[model.NewOfferEvent], logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}
	return &Handler{
		cfg:    cfg,
		events: events,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: make(map[*session]struct{}),
	}
}

// ServeHTTP implements http.Handler. It blocks until the connection ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "stream closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	name := fmt.Sprintf("stream-%d", h.seq.Add(1))
	s := &session{
		h:       h,
		conn:    conn,
		obs:     h.events.Subscribe(name, h.cfg.BufferSize),
		account: r.URL.Query().Get("account"),
		done:    make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		h.events.Unsubscribe(s.obs)
		conn.Close()
		return
	}
	h.sessions[s] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("stream client connected", "name", name, "remote", r.RemoteAddr, "account", s.account)

	go s.readLoop()
	go s.heartbeatLoop()
	s.writeLoop()

	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
	h.logger.Info("stream client disconnected", "name", name, "dropped", s.obs.Stats().Dropped)
}

// Sessions returns the number of connected clients.
func (h *Handler) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Sent returns the number of frames written across all sessions.
func (h *Handler) Sent() int64 {
	return h.sent.Load()
}

// Close disconnects every client and rejects new ones.
func (h *Handler) Close() {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}

// session is one connected client.
type session struct {
	h       *Handler
	conn    *websocket.Conn
	obs     *notify.Observer[model.NewOfferEvent]
	account string

	// Write serialization
	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

// close unsubscribes the observer, which ends writeLoop.
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.h.events.Unsubscribe(s.obs)
	})
}

func (s *session) writeLoop() {
	defer s.conn.Close()
	defer s.close()

	for {
		ev, ok := s.obs.Receive()
		if !ok {
			s.writeMu.Lock()
			s.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			s.writeMu.Unlock()
			return
		}
		if s.account != "" && ev.AccountKey != s.account {
			continue
		}
		if err := s.write(ev); err != nil {
			s.h.logger.Debug("stream write failed", "name", s.obs.Name(), "error", err)
			return
		}
		s.h.sent.Add(1)
	}
}

func (s *session) write(ev model.NewOfferEvent) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.h.cfg.WriteTimeout))
	return s.conn.WriteJSON(ev)
}

// readLoop discards client frames and ends the session when the peer goes away.
func (s *session) readLoop() {
	defer s.close()
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *session) heartbeatLoop() {
	ticker := time.NewTicker(s.h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.h.cfg.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				s.h.logger.Debug("failed to send ping", "name", s.obs.Name(), "error", err)
				s.close()
				return
			}
		}
	}
}
