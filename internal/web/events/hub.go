// Package events streams hierarchy publish notifications to admin clients
// over WebSocket. Clients only listen; anything they send is discarded.
package events

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/conduit-lang/hierroutes/internal/service"
)

// TypePublished is the message type sent for every published snapshot
const TypePublished = "hierarchy.published"

// Message is the envelope written to clients
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Config holds the hub configuration
type Config struct {
	ReadBufferSize  int
	WriteBufferSize int
	// SendBuffer is the per-client queue; a client that falls this far
	// behind is disconnected
	SendBuffer int
	// CheckOrigin overrides the same-origin check of the upgrader
	CheckOrigin func(r *http.Request) bool
}

// DefaultConfig returns the default hub configuration
func DefaultConfig() Config {
	return Config{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      16,
	}
}

// Hub fans published events out to the connected clients. The latest
// event is replayed to every client as it connects.
type Hub struct {
	config   Config
	upgrader websocket.Upgrader
	logger   *zap.Logger

	clients   map[*client]struct{}
	clientsMu sync.RWMutex
	last      []byte

	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub creates a Hub. Start must be called before clients connect.
func NewHub(ctx context.Context, config Config, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = DefaultConfig().SendBuffer
	}
	hubCtx, cancel := context.WithCancel(ctx)

	return &Hub{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		logger:     logger.Named("events"),
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 64),
		ctx:        hubCtx,
		cancel:     cancel,
	}
}

// Start runs the hub loop in the background
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.run()
}

func (h *Hub) run() {
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			return

		case c := <-h.register:
			h.clientsMu.Lock()
			h.clients[c] = struct{}{}
			h.clientsMu.Unlock()
			if h.last != nil {
				c.send <- h.last // the buffer is empty on register
			}
			h.logger.Debug("client connected", zap.String("client_id", c.id), zap.Int("clients", h.ClientCount()))

		case c := <-h.unregister:
			h.drop(c)
			h.logger.Debug("client disconnected", zap.String("client_id", c.id), zap.Int("clients", h.ClientCount()))

		case data := <-h.broadcast:
			h.last = data
			for _, c := range h.snapshot() {
				select {
				case c.send <- data:
				default:
					h.logger.Warn("dropping slow client", zap.String("client_id", c.id))
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) snapshot() []*client {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	out := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

// drop removes c and closes its queue, which ends its write pump
func (h *Hub) drop(c *client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) closeAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// Published implements service.Observer. It never blocks the build; the
// event is dropped when the hub is saturated.
func (h *Hub) Published(ev service.Published) {
	data, err := json.Marshal(Message{Type: TypePublished, Data: ev})
	if err != nil {
		h.logger.Error("failed to encode event", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.ctx.Done():
	default:
		h.logger.Warn("event queue full, dropping event", zap.String("source", ev.Source))
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and subscribes the connection
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the error response
		h.logger.Debug("upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		hub:  h,
		send: make(chan []byte, h.config.SendBuffer),
	}
	select {
	case h.register <- c:
	case <-h.ctx.Done():
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// Shutdown disconnects every client and stops the hub loop
func (h *Hub) Shutdown() {
	h.cancel()
	h.wg.Wait()
}
