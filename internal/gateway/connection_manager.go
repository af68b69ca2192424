package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/duelgrid/duelgrid/internal/events"
)

// ConnectionManager owns every live room subscription in the process.
// It is an explicit object with open/close lifecycle, never a package
// level registry, so teardown and tests stay deterministic.
type ConnectionManager struct {
	roomConnections map[string]map[*Connection]bool
	// latestVersion guards the per-room ordering guarantee: snapshots go
	// out in document-version order and stale ones are dropped.
	latestVersion map[string]int64
	mu            sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan *events.Envelope
}

// Connection represents one subscriber's websocket.
type Connection struct {
	ID       string
	PlayerID string
	RoomID   string
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time

	// sendMu orders trySend against closeSend so the broadcast loop can
	// never write to a channel another goroutine just closed.
	sendMu sync.Mutex
	closed bool
}

// trySend queues one frame. Returns false when the connection is closed
// or its buffer is full.
func (c *Connection) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the outbound channel exactly once.
func (c *Connection) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// ConnectionConfig holds websocket tuning knobs.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns the default websocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a websocket connection manager.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		roomConnections: make(map[string]map[*Connection]bool),
		latestVersion:   make(map[string]int64),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan *events.Envelope, 256),
	}
}

// Start processes broadcasts until ctx is cancelled. Events for one room
// are handled one at a time, in delivery order.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case event := <-cm.broadcastCh:
			cm.handleBroadcast(event)
		}
	}
}

// Open upgrades an HTTP request into a room subscription.
func (cm *ConnectionManager) Open(w http.ResponseWriter, r *http.Request, playerID, roomID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		PlayerID:    playerID,
		RoomID:      roomID,
		Conn:        conn,
		Send:        make(chan []byte, 64),
		Manager:     cm,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}
	cm.register(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("player_id", playerID).
		Str("room_id", roomID).
		Msg("websocket subscription opened")
	return nil
}

// Close tears down every subscription for a room, e.g. after a sweep.
func (cm *ConnectionManager) Close(roomID string) {
	cm.mu.Lock()
	connections := cm.roomConnections[roomID]
	delete(cm.roomConnections, roomID)
	delete(cm.latestVersion, roomID)
	cm.mu.Unlock()

	for conn := range connections {
		conn.closeSend()
		conn.Conn.Close()
	}
	if len(connections) > 0 {
		log.Info().Str("room_id", roomID).Int("connections", len(connections)).Msg("room subscriptions closed")
	}
}

// Broadcast enqueues an event for fanout to a room's subscribers.
func (cm *ConnectionManager) Broadcast(event *events.Envelope) {
	select {
	case cm.broadcastCh <- event:
	default:
		log.Warn().Str("room_id", event.RoomID).Msg("broadcast channel full, dropping event")
	}
}

func (cm *ConnectionManager) register(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.roomConnections[conn.RoomID] == nil {
		cm.roomConnections[conn.RoomID] = make(map[*Connection]bool)
	}
	cm.roomConnections[conn.RoomID][conn] = true
}

func (cm *ConnectionManager) unregister(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if connections, exists := cm.roomConnections[conn.RoomID]; exists {
		if _, exists := connections[conn]; exists {
			delete(connections, conn)
			conn.closeSend()
			if len(connections) == 0 {
				delete(cm.roomConnections, conn.RoomID)
				delete(cm.latestVersion, conn.RoomID)
			}
			log.Info().
				Str("connection_id", conn.ID).
				Str("player_id", conn.PlayerID).
				Str("room_id", conn.RoomID).
				Msg("websocket subscription closed")
		}
	}
}

func (cm *ConnectionManager) handleBroadcast(event *events.Envelope) {
	cm.mu.Lock()
	if event.Version <= cm.latestVersion[event.RoomID] {
		cm.mu.Unlock()
		log.Debug().
			Str("room_id", event.RoomID).
			Int64("version", event.Version).
			Msg("dropping out-of-order snapshot")
		return
	}
	cm.latestVersion[event.RoomID] = event.Version

	connections := cm.roomConnections[event.RoomID]
	targets := make([]*Connection, 0, len(connections))
	for conn := range connections {
		targets = append(targets, conn)
	}
	cm.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		if !conn.trySend(data) {
			// Slow, dead, or already-closed subscriber; drop it rather
			// than stall the room.
			log.Warn().
				Str("connection_id", conn.ID).
				Str("player_id", conn.PlayerID).
				Msg("send failed, closing connection")
			cm.unregister(conn)
			conn.Conn.Close()
		}
	}

	log.Debug().
		Str("event_type", string(event.Type)).
		Str("room_id", event.RoomID).
		Int64("version", event.Version).
		Int("connections", len(targets)).
		Msg("event broadcast")
}

// Stats returns connection counts for the stats endpoint.
func (cm *ConnectionManager) Stats() (total int, rooms int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for _, connections := range cm.roomConnections {
		total += len(connections)
	}
	return total, len(cm.roomConnections)
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to write to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, _, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close")
			}
			break
		}
		// The feed is one-way; client frames only refresh the deadline.
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
