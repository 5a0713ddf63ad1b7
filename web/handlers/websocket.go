package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket" //nolint:staticcheck // TODO: migrate to github.com/coder/websocket

	"github.com/scrypster/voxmemo/internal/logging"
	"github.com/scrypster/voxmemo/internal/pipeline"
)

// SnapshotHub manages WebSocket connections and broadcasts pipeline snapshots.
// A newly registered client immediately receives the last broadcast message.
type SnapshotHub struct {
	clients    map[clientInterface]bool
	broadcast  chan interface{}
	register   chan clientInterface
	unregister chan clientInterface
	mu         sync.RWMutex
	last       []byte
	hosts      []string
	log        *zap.SugaredLogger
	ctx        context.Context
	cancel     context.CancelFunc
}

// clientInterface allows for both real clients and mock clients.
type clientInterface interface {
	getSendChannel() chan []byte
	close()
}

// Client represents a WebSocket connection.
type Client struct {
	hub  *SnapshotHub
	conn *websocket.Conn //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	send chan []byte
}

func (c *Client) getSendChannel() chan []byte {
	return c.send
}

func (c *Client) close() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}
}

// NewSnapshotHub creates a hub accepting connections whose Origin host is one
// of hosts (host:port).
func NewSnapshotHub(hosts []string, logger *zap.SugaredLogger) *SnapshotHub {
	ctx, cancel := context.WithCancel(context.Background())
	return &SnapshotHub{
		clients:    make(map[clientInterface]bool),
		broadcast:  make(chan interface{}, 256),
		register:   make(chan clientInterface),
		unregister: make(chan clientInterface),
		hosts:      hosts,
		log:        logging.OrNop(logger),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the hub's message processing loop.
func (h *SnapshotHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if h.last != nil {
				select {
				case client.getSendChannel() <- h.last:
				default:
				}
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Infow("websocket client connected", "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.getSendChannel())
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Infow("websocket client disconnected", "clients", count)

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.log.Errorw("failed to marshal websocket message", "error", err)
				continue
			}

			// Full lock: slow clients are removed in the default branch.
			h.mu.Lock()
			h.last = data
			for client := range h.clients {
				sendChan := client.getSendChannel()
				select {
				case sendChan <- data:
				default:
					close(sendChan)
					delete(h.clients, client)
					h.log.Warnw("dropping slow websocket client")
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			h.log.Infow("websocket hub stopping")
			return
		}
	}
}

// Stop gracefully shuts down the hub.
func (h *SnapshotHub) Stop() {
	h.cancel()

	h.mu.Lock()
	for client := range h.clients {
		close(client.getSendChannel())
		client.close()
	}
	h.clients = make(map[clientInterface]bool)
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients.
func (h *SnapshotHub) Broadcast(message interface{}) {
	select {
	case h.broadcast <- message:
	default:
		h.log.Warnw("websocket broadcast channel full, dropping message")
	}
}

// Forward broadcasts every snapshot read from ch until ch is closed or ctx
// is done.
func (h *SnapshotHub) Forward(ctx context.Context, ch <-chan pipeline.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			h.Broadcast(Message{Type: MessageSnapshot, Data: snap})
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *SnapshotHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a client to the hub.
func (h *SnapshotHub) Register(client clientInterface) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

// Unregister removes a client from the hub.
func (h *SnapshotHub) Unregister(client clientInterface) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *SnapshotHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !originAllowed(r.Header.Get("Origin"), h.hosts) {
		http.Error(w, "Forbidden: invalid origin", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{ //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		OriginPatterns: h.hosts,
	})
	if err != nil {
		h.log.Errorw("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 16),
	}

	h.Register(client)

	go client.writePump()
	go client.readPump()
}

// writePump sends messages to the WebSocket connection.
func (c *Client) writePump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}()

	for message := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, message) //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
		cancel()

		if err != nil {
			c.hub.log.Debugw("websocket write failed", "error", err)
			return
		}
	}
}

// readPump drains client messages to detect disconnects.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close(websocket.StatusNormalClosure, "") //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
	}()

	for {
		if _, _, err := c.conn.Read(c.hub.ctx); err != nil { //nolint:staticcheck // TODO: migrate to github.com/coder/websocket
			return
		}
	}
}

// MockClient is a mock client for testing.
type MockClient struct {
	SendChan chan []byte
}

func (m *MockClient) getSendChannel() chan []byte {
	return m.SendChan
}

func (m *MockClient) close() {}
