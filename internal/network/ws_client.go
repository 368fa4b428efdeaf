// Package network provides the pose stream client.
package network

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"keyavatar/internal/log"
	"keyavatar/internal/protocol"
)

// PoseClient subscribes to a pose stream and reconnects when it drops.
type PoseClient struct {
	addr  string
	token string
	send  chan protocol.Message
	done  chan struct{}
	wg    sync.WaitGroup

	// ctx cancels a dial in progress on Close
	ctx    context.Context
	cancel context.CancelFunc

	// ReconnectDelay is the wait between connection attempts.
	ReconnectDelay time.Duration

	// Callbacks, run on the read goroutine
	OnHello  func(hello protocol.HelloPayload)
	OnPose   func(pose protocol.PosePayload)
	OnStatus func(status json.RawMessage)
	OnError  func(message string)

	mu          sync.Mutex
	conn        *websocket.Conn
	isConnected bool
	closeOnce   sync.Once
	logger      *slog.Logger
}

// NewPoseClient creates a client for the server at addr (host:port).
func NewPoseClient(addr, token string) *PoseClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &PoseClient{
		addr:           addr,
		token:          token,
		send:           make(chan protocol.Message, 16),
		done:           make(chan struct{}),
		ctx:            ctx,
		cancel:         cancel,
		ReconnectDelay: 5 * time.Second,
		logger:         log.Component("pose-client"),
	}
}

// Start begins the client loop (connect & process)
func (c *PoseClient) Start() {
	c.wg.Add(1)
	go c.loop()
}

func (c *PoseClient) loop() {
	defer c.wg.Done()
	for {
		c.connect()

		// If connect returns, it means we disconnected. Wait a bit and retry.
		select {
		case <-c.done:
			return
		case <-time.After(c.ReconnectDelay):
			c.logger.Debug("attempting reconnection", "addr", c.addr)
		}
	}
}

func (c *PoseClient) connect() {
	u := url.URL{Scheme: "ws", Host: c.addr, Path: "/ws"}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, u.String(), header)
	if err != nil {
		if c.ctx.Err() == nil {
			c.logger.Warn("connection failed", "url", u.String(), "error", err)
		}
		return
	}
	defer conn.Close()

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return
	default:
	}
	c.conn = conn
	c.isConnected = true
	c.mu.Unlock()

	c.logger.Info("connected", "url", u.String())

	connDone := make(chan struct{})
	go func() {
		defer close(connDone)
		c.writePump(conn)
	}()

	c.readPump(conn)

	c.mu.Lock()
	c.isConnected = false
	c.conn = nil
	c.mu.Unlock()

	// unblock the write pump if it is idle
	conn.Close()
	<-connDone
}

func (c *PoseClient) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("read error", "error", err)
			}
			return
		}
		// any traffic proves the server alive
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		var msg struct {
			Type    protocol.MessageType `json:"type"`
			Payload json.RawMessage      `json:"payload"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("invalid message", "error", err)
			continue
		}
		c.handleMessage(msg.Type, msg.Payload)
	}
}

func (c *PoseClient) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				c.logger.Debug("write error", "error", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *PoseClient) handleMessage(typ protocol.MessageType, payload json.RawMessage) {
	switch typ {
	case protocol.TypeHello:
		var hello protocol.HelloPayload
		if err := json.Unmarshal(payload, &hello); err != nil {
			c.logger.Debug("invalid hello", "error", err)
			return
		}
		c.logger.Info("stream hello", "session", hello.Session, "mode", hello.Mode, "params", len(hello.Params))
		if c.OnHello != nil {
			c.OnHello(hello)
		}

	case protocol.TypePose:
		var pose protocol.PosePayload
		if err := json.Unmarshal(payload, &pose); err != nil {
			c.logger.Debug("invalid pose", "error", err)
			return
		}
		if c.OnPose != nil {
			c.OnPose(pose)
		}

	case protocol.TypeStatus:
		if c.OnStatus != nil {
			c.OnStatus(payload)
		}

	case protocol.TypeError:
		var e protocol.ErrorPayload
		json.Unmarshal(payload, &e)
		c.logger.Warn("server rejected request", "message", e.Message)
		if c.OnError != nil {
			c.OnError(e.Message)
		}
	}
}

// queue drops the request when the client is not connected or is backed up.
func (c *PoseClient) queue(msg protocol.Message) bool {
	if !c.IsConnected() {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// RequestResync asks the server to rescan its input devices.
func (c *PoseClient) RequestResync() bool {
	return c.queue(protocol.Message{Type: protocol.TypeResync})
}

// RequestMode asks the server to switch modes.
func (c *PoseClient) RequestMode(name string) bool {
	return c.queue(protocol.Message{Type: protocol.TypeMode, Payload: protocol.ModePayload{Name: name}})
}

// RequestStatus asks the server for a status message.
func (c *PoseClient) RequestStatus() bool {
	return c.queue(protocol.Message{Type: protocol.TypeStatusRequest})
}

// IsConnected returns true if client is connected to the server
func (c *PoseClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected
}

// Close stops the client and waits for its goroutines.
func (c *PoseClient) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.done)
		c.cancel()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
	})
	c.wg.Wait()
}
