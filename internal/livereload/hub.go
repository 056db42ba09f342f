// Package livereload pushes rebuild notifications to connected browsers
// over a websocket, so preview pages can refresh after watch-mode builds.
package livereload

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/toolkit/internal/logging"
)

// Path is the websocket endpoint.
const Path = "/livereload"

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Message is sent to every client after a successful rebuild.
type Message struct {
	Type      string    `json:"type"`
	Stage     string    `json:"stage"`
	Paths     []string  `json:"paths"`
	Timestamp time.Time `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected clients and fans out messages to them.
type Hub struct {
	origins []string
	logger  logging.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]*client

	broadcast chan []byte

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// NewHub creates a hub and starts its broadcast loop. origins are host
// patterns accepted in the Origin header; empty allows only same-host.
func NewHub(origins []string, logger logging.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		origins:   origins,
		logger:    logger.WithComponent("livereload"),
		clients:   make(map[*websocket.Conn]*client),
		broadcast: make(chan []byte, 64),
		ctx:       ctx,
		cancel:    cancel,
	}
	go h.run()
	return h
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.origins,
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "Websocket upgrade failed", "remote", r.RemoteAddr)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 16)}
	h.mu.Lock()
	h.clients[conn] = c
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug(r.Context(), "Live reload client connected", "clients", total)
	h.serve(c)
}

func (h *Hub) serve(c *client) {
	ctx := c.conn.CloseRead(h.ctx)
	defer h.remove(c.conn, websocket.StatusNormalClosure, "")

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if ok {
		_ = conn.Close(code, reason)
	}
}

func (h *Hub) run() {
	for {
		select {
		case msg := <-h.broadcast:
			h.mu.RLock()
			for _, c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow client; it will catch the next message.
				}
			}
			h.mu.RUnlock()
		case <-h.ctx.Done():
			return
		}
	}
}

// Broadcast queues msg for every connected client.
func (h *Hub) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.Paths == nil {
		msg.Paths = []string{}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error(h.ctx, err, "Failed to marshal live reload message")
		return
	}

	select {
	case h.broadcast <- data:
	case <-h.ctx.Done():
	default:
		h.logger.Warn(h.ctx, nil, "Live reload queue full, dropping message")
	}
}

// Reload broadcasts a reload message for stage.
func (h *Hub) Reload(stage string, paths []string) {
	h.Broadcast(Message{Type: "reload", Stage: stage, Paths: paths})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every client and stops the hub.
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		h.cancel()
		h.mu.Lock()
		conns := make([]*websocket.Conn, 0, len(h.clients))
		for conn := range h.clients {
			conns = append(conns, conn)
		}
		h.mu.Unlock()
		for _, conn := range conns {
			h.remove(conn, websocket.StatusGoingAway, "server shutdown")
		}
	})
}

// Serve runs an HTTP server for the hub on addr until ctx is done.
func Serve(ctx context.Context, addr string, hub *Hub) error {
	mux := http.NewServeMux()
	mux.Handle(Path, hub)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		hub.logger.Info(ctx, "Live reload listening", "addr", addr, "path", Path)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		hub.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
