package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"keyavatar/internal/animation"
	"keyavatar/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Local tool: any origin may subscribe once authorized
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type poseUpdate struct {
	seq   uint64
	at    time.Time
	frame animation.PoseFrame
}

// WSManager handles WebSocket connections and broadcasting. The client set is
// owned by the start goroutine.
type WSManager struct {
	server     *Server
	clients    map[*WebSocketClient]bool
	clientsMu  sync.RWMutex
	broadcast  chan poseUpdate
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	shutdown   chan struct{}
	stopOnce   sync.Once
	dropped    atomic.Uint64
}

// WebSocketClient represents a connected stream subscriber
type WebSocketClient struct {
	manager *WSManager
	conn    *websocket.Conn
	send    chan []byte
	ip      string
	session string
}

func newWSManager(s *Server) *WSManager {
	return &WSManager{
		server:     s,
		clients:    make(map[*WebSocketClient]bool),
		broadcast:  make(chan poseUpdate, 8),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		shutdown:   make(chan struct{}),
	}
}

func (m *WSManager) start() {
	logger := m.server.logger
	for {
		select {
		case client := <-m.register:
			m.clientsMu.Lock()
			m.clients[client] = true
			n := len(m.clients)
			m.clientsMu.Unlock()
			logger.Info("stream client connected", "remote", client.ip, "session", client.session, "clients", n)

		case client := <-m.unregister:
			m.remove(client)

		case update := <-m.broadcast:
			m.broadcastPose(update)

		case <-m.shutdown:
			m.clientsMu.Lock()
			for client := range m.clients {
				close(client.send)
				delete(m.clients, client)
			}
			m.clientsMu.Unlock()
			return
		}
	}
}

func (m *WSManager) remove(client *WebSocketClient) {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	if _, ok := m.clients[client]; ok {
		delete(m.clients, client)
		close(client.send)
		m.server.logger.Info("stream client disconnected", "remote", client.ip, "clients", len(m.clients))
	}
}

func (m *WSManager) stop() {
	m.stopOnce.Do(func() { close(m.shutdown) })
}

func (m *WSManager) count() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

func (m *WSManager) broadcastPose(update poseUpdate) {
	params, err := json.Marshal(update.frame)
	if err != nil {
		m.server.logger.Warn("failed to marshal pose", "error", err)
		return
	}
	jsonMsg, err := json.Marshal(protocol.Message{
		Type: protocol.TypePose,
		Payload: protocol.PosePayload{
			Seq:    update.seq,
			TimeMS: update.at.UnixMilli(),
			Params: params,
		},
	})
	if err != nil {
		m.server.logger.Warn("failed to marshal pose", "error", err)
		return
	}

	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()

	for client := range m.clients {
		select {
		case client.send <- jsonMsg:
		default:
			// slow subscriber: drop it rather than stall the stream
			close(client.send)
			delete(m.clients, client)
		}
	}
}

// BroadcastPose queues a frame for every client. When the hub is behind the
// frame is dropped; the next one supersedes it anyway.
func (m *WSManager) BroadcastPose(seq uint64, at time.Time, frame animation.PoseFrame) {
	select {
	case m.broadcast <- poseUpdate{seq: seq, at: at, frame: frame}:
	default:
		m.dropped.Add(1)
	}
}

func (m *WSManager) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.server.logger.Warn("failed to upgrade connection", "error", err)
		return
	}

	client := &WebSocketClient{
		manager: m,
		conn:    conn,
		send:    make(chan []byte, 256),
		ip:      r.RemoteAddr,
		session: uuid.NewString(),
	}

	// hello goes first so the client learns the parameter order
	snap := m.server.ctrl.Snapshot()
	client.send <- mustMarshal(protocol.Message{
		Type: protocol.TypeHello,
		Payload: protocol.HelloPayload{
			Session: client.session,
			Server:  m.server.id,
			Version: m.server.version,
			Mode:    snap.Mode,
			Params:  snap.Params,
		},
	})

	select {
	case m.register <- client:
	case <-m.shutdown:
		conn.Close()
		return
	}

	// Start pump goroutines
	go client.writePump()
	go client.readPump()
}

func mustMarshal(msg protocol.Message) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	return data
}

// readPump pumps messages from the websocket connection to the hub.
func (c *WebSocketClient) readPump() {
	defer func() {
		select {
		case c.manager.unregister <- c:
		case <-c.manager.shutdown:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.manager.server.logger.Debug("read error", "remote", c.ip, "error", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(50 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reply queues a message for this client only. The hub may have closed the
// send channel already, so a send on it is guarded.
func (c *WebSocketClient) reply(msg protocol.Message) {
	c.manager.clientsMu.RLock()
	defer c.manager.clientsMu.RUnlock()
	if !c.manager.clients[c] {
		return
	}
	select {
	case c.send <- mustMarshal(msg):
	default:
	}
}

func (c *WebSocketClient) handleMessage(data []byte) {
	logger := c.manager.server.logger
	ctrl := c.manager.server.ctrl

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Debug("invalid message format", "remote", c.ip, "error", err)
		c.reply(protocol.Message{Type: protocol.TypeError, Payload: protocol.ErrorPayload{Message: "invalid message"}})
		return
	}

	switch msg.Type {
	case protocol.TypeStatusRequest:
		c.reply(protocol.Message{Type: protocol.TypeStatus, Payload: ctrl.Snapshot()})

	case protocol.TypeResync:
		logger.Info("resync requested", "remote", c.ip)
		ctrl.RequestResync()

	case protocol.TypeMode:
		var payload protocol.ModePayload
		if err := protocol.DecodePayload(msg, &payload); err != nil || payload.Name == "" {
			c.reply(protocol.Message{Type: protocol.TypeError, Payload: protocol.ErrorPayload{Message: "invalid mode payload"}})
			return
		}
		if !hasMode(ctrl.Snapshot().Modes, payload.Name) {
			c.reply(protocol.Message{Type: protocol.TypeError, Payload: protocol.ErrorPayload{Message: "unknown mode " + payload.Name}})
			return
		}
		logger.Info("mode switch requested", "mode", payload.Name, "remote", c.ip)
		ctrl.RequestMode(payload.Name)

	default:
		c.reply(protocol.Message{Type: protocol.TypeError, Payload: protocol.ErrorPayload{Message: "unsupported message " + string(msg.Type)}})
	}
}
