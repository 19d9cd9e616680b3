package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mvaldr/crossing-core/internal/infrastructure/config"
	"github.com/mvaldr/crossing-core/internal/infrastructure/logging"
	"github.com/mvaldr/crossing-core/internal/state"
)

// Event types on the live state stream.
const (
	EventTypeState = "state"
	EventTypePing  = "ping"
)

// ReasonInitial tags the snapshot sent to a freshly registered client.
const ReasonInitial = "initial"

// Event is one frame on the live state stream. State events carry the
// full snapshot; ping events prove the stream is alive and carry no
// payload beyond their timestamp.
type Event struct {
	Type        string                       `json:"type"`
	Reason      string                       `json:"reason,omitempty"`
	Timestamp   string                       `json:"timestamp"`
	Lights      map[string]state.SignalState `json:"lights,omitempty"`
	TrafficFlow *state.FlowDirective         `json:"trafficFlow,omitempty"`
	VehicleData *state.VehicleData           `json:"vehicleData,omitempty"`
}

// Hub fans full-state snapshots out to every connected observer. It
// implements state.Broadcaster. There are no per-client channels or
// diffs: every client receives every snapshot, and a client whose send
// fails or whose buffer is full is dropped on the spot. The observer is
// responsible for reconnecting.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger
	store  *state.Store

	mu      sync.RWMutex
	clients map[string]*WSClient
}

// WSClient is one connected observer, owned exclusively by the hub.
type WSClient struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates the broadcast hub.
func NewHub(store *state.Store, cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		clients: make(map[string]*WSClient),
	}
}

// Run blocks until the context is cancelled, then disconnects all
// clients.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client and immediately sends it one full snapshot
// tagged initial.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()
	h.logger.Debug("observer connected", "connection_id", client.id, "clients", h.ClientCount())

	data, err := h.stateEvent(ReasonInitial)
	if err != nil {
		h.logger.Error("encoding initial snapshot failed", "error", err)
		return
	}
	h.deliver(client, data)
}

// Unregister removes a client; idempotent. Only the goroutine that
// removes the client from the map closes its send channel, preventing
// double-close panics during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client.id]
	delete(h.clients, client.id)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("observer disconnected", "connection_id", client.id, "clients", h.ClientCount())
}

// Broadcast serializes one full snapshot tagged with reason and sends
// it to every registered client. A failed delivery drops that client
// without affecting the others; there are no retries.
func (h *Hub) Broadcast(reason string) {
	data, err := h.stateEvent(reason)
	if err != nil {
		h.logger.Error("encoding broadcast failed", "reason", reason, "error", err)
		return
	}

	// Snapshot the client list under the hub lock, then release before
	// sending so a slow drop cannot stall registration.
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		h.deliver(client, data)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// stateEvent builds a serialized full-state event.
func (h *Hub) stateEvent(reason string) ([]byte, error) {
	snap := h.store.Snapshot()
	return json.Marshal(Event{
		Type:        EventTypeState,
		Reason:      reason,
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		Lights:      snap.Lights,
		TrafficFlow: &snap.TrafficFlow,
		VehicleData: &snap.VehicleData,
	})
}

// deliver queues data for one client, dropping the client on failure.
func (h *Hub) deliver(client *WSClient, data []byte) {
	if client.trySend(data) {
		return
	}
	h.logger.Warn("dropping unresponsive observer", "connection_id", client.id)
	h.Unregister(client)
	if client.conn != nil {
		client.conn.Close()
	}
}

// closeAll disconnects all clients and closes their send channels so
// writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, id)
	}
}

// handleWebSocket upgrades the HTTP connection and registers the client
// on the hub. The stream is one-way; inbound frames only keep the
// connection's read side alive.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		id:   uuid.NewString(),
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, s.hub.cfg.SendBuffer),
	}

	s.hub.Register(client)

	go client.writePump(s.hub.cfg)
	go client.readPump(s.hub.cfg)
}

// readPump drains the connection to detect closure. Observers have
// nothing to say; any inbound frame just resets the read deadline.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "connection_id", c.id, "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "connection_id", c.id)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	}
}

// writePump writes queued events to the connection and emits the
// periodic liveness ping. The ping ticker is this connection's liveness
// timer: it runs iff the client is registered, and stops when the hub
// closes the send channel.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			ping, err := json.Marshal(Event{
				Type:      EventTypePing,
				Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			})
			if err != nil {
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, ping); err != nil {
				return
			}
		}
	}
}

// trySend queues data for the client. It reports false when the buffer
// is full or the channel is already closed.
func (c *WSClient) trySend(data []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}
