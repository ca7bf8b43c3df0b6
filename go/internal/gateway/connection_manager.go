package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionManager tracks the UI connections attached to the session.
type ConnectionManager struct {
	mu    sync.RWMutex
	conns map[*Connection]struct{}

	upgrader  websocket.Upgrader
	config    ConnectionConfig
	broadcast chan []byte

	// onMessage handles every frame a client sends.
	onMessage func(c *Connection, message []byte)
	// onEmpty runs when the last connection goes away.
	onEmpty func()
}

// Connection is one attached UI.
type Connection struct {
	ID          string
	ConnectedAt time.Time

	ws      *websocket.Conn
	send    chan []byte
	manager *ConnectionManager
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		SendBuffer:      16,
		// The gateway only listens for a local UI.
		CheckOrigin: func(*http.Request) bool { return true },
	}
}

func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBuffer <= 0 {
		config.SendBuffer = DefaultConnectionConfig().SendBuffer
	}
	return &ConnectionManager{
		conns: make(map[*Connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:    config,
		broadcast: make(chan []byte, 64),
	}
}

// Start fans broadcasts out to connections until ctx is done.
func (cm *ConnectionManager) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("connection manager stopped")
			return
		case frame := <-cm.broadcast:
			cm.fanOut(frame)
		}
	}
}

// UpgradeConnection upgrades the request and queues greeting ahead of any
// broadcast the connection could receive.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, greeting []byte) (*Connection, error) {
	ws, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	c := &Connection{
		ID:          uuid.New().String(),
		ConnectedAt: time.Now(),
		ws:          ws,
		send:        make(chan []byte, cm.config.SendBuffer),
		manager:     cm,
	}
	if greeting != nil {
		c.send <- greeting
	}

	cm.mu.Lock()
	cm.conns[c] = struct{}{}
	total := len(cm.conns)
	cm.mu.Unlock()

	go c.writeLoop()
	go c.readLoop()

	log.Info().
		Str("connection_id", c.ID).
		Str("remote_addr", r.RemoteAddr).
		Int("total_connections", total).
		Msg("UI attached")

	return c, nil
}

// drop removes c and reports whether it was still registered.
func (cm *ConnectionManager) drop(c *Connection) bool {
	cm.mu.Lock()
	if _, ok := cm.conns[c]; !ok {
		cm.mu.Unlock()
		return false
	}
	delete(cm.conns, c)
	close(c.send)
	empty := len(cm.conns) == 0
	cm.mu.Unlock()

	log.Info().Str("connection_id", c.ID).Bool("last", empty).Msg("UI detached")

	if empty && cm.onEmpty != nil {
		cm.onEmpty()
	}
	return true
}

// Broadcast queues a frame for every connection.
func (cm *ConnectionManager) Broadcast(frame []byte) {
	select {
	case cm.broadcast <- frame:
	default:
		log.Warn().Msg("broadcast queue full, dropping frame")
	}
}

// SendTo queues a frame for c if it is still registered and keeping up.
func (cm *ConnectionManager) SendTo(c *Connection, frame []byte) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if _, ok := cm.conns[c]; !ok {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (cm *ConnectionManager) fanOut(frame []byte) {
	cm.mu.RLock()
	targets := make([]*Connection, 0, len(cm.conns))
	for c := range cm.conns {
		targets = append(targets, c)
	}
	cm.mu.RUnlock()

	for _, c := range targets {
		if cm.SendTo(c, frame) {
			continue
		}
		// A UI that cannot keep up gets the latest view again when it reconnects.
		if cm.drop(c) {
			log.Warn().Str("connection_id", c.ID).Msg("slow UI disconnected")
			_ = c.ws.Close()
		}
	}
}

// Count returns the number of attached connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.conns)
}

// CloseAll drops every connection without firing onEmpty.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	conns := cm.conns
	cm.conns = make(map[*Connection]struct{})
	for c := range conns {
		close(c.send)
	}
	cm.mu.Unlock()

	for c := range conns {
		_ = c.ws.Close()
	}
}

func (c *Connection) writeDeadline() {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
}

func (c *Connection) readDeadline() {
	_ = c.ws.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
}

func (c *Connection) writeLoop() {
	ping := time.NewTicker(c.manager.config.PingInterval)
	defer ping.Stop()
	defer c.ws.Close()

	for {
		var (
			kind  = websocket.PingMessage
			frame []byte
		)
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.writeDeadline()
				_ = c.ws.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			kind, frame = websocket.TextMessage, msg
		case <-ping.C:
		}

		c.writeDeadline()
		if err := c.ws.WriteMessage(kind, frame); err != nil {
			log.Debug().Err(err).Str("connection_id", c.ID).Msg("websocket write failed")
			return
		}
	}
}

func (c *Connection) readLoop() {
	defer c.ws.Close()
	defer c.manager.drop(c)

	c.ws.SetReadLimit(c.manager.config.MaxMessageSize)
	c.readDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.readDeadline()
		return nil
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close")
			}
			return
		}
		c.readDeadline()
		if c.manager.onMessage != nil {
			c.manager.onMessage(c, msg)
		}
	}
}
