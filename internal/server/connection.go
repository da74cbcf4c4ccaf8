package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/chinesepoker/internal/estimator"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var ErrConnectionClosed = errors.New("connection closed")

// Connection is one websocket client. It runs at most one equilibrium
// search at a time and streams its progress.
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	server    *Server
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu          sync.Mutex
	solveCancel context.CancelFunc
	solves      sync.WaitGroup
}

// NewConnection creates a new connection wrapper
func NewConnection(parent context.Context, conn *websocket.Conn, s *Server) *Connection {
	ctx, cancel := context.WithCancel(parent)
	return &Connection{
		conn:   conn,
		send:   make(chan *Message, 256),
		server: s,
		logger: s.logger.WithPrefix("conn"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Done is closed once the connection shuts down.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close cancels any running search and closes the socket
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// SendMessage queues a message, blocking while the buffer is full
func (c *Connection) SendMessage(msg *Message) error {
	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

func (c *Connection) readPump() {
	defer func() {
		_ = c.Close()
		c.solves.Wait()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		c.handleMessage(&msg)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type)

	switch msg.Type {
	case MessageTypeSolve:
		var data SolveData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg.RequestID, "invalid_message", "Failed to parse solve data")
			return
		}
		c.startSolve(msg.RequestID, data)

	case MessageTypeCancel:
		c.mu.Lock()
		if c.solveCancel != nil {
			c.solveCancel()
		}
		c.mu.Unlock()

	default:
		c.sendError(msg.RequestID, "unknown_message", "Unknown message type: "+string(msg.Type))
	}
}

func (c *Connection) startSolve(requestID string, data SolveData) {
	c.mu.Lock()
	if c.solveCancel != nil {
		c.mu.Unlock()
		c.sendError(requestID, "busy", "A search is already running on this connection")
		return
	}
	ctx, cancel := context.WithCancel(c.ctx)
	c.solveCancel = cancel
	c.solves.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.solves.Done()

		rec, err := c.server.solve(ctx, data, func(state estimator.EquilibriumState) {
			c.reply(requestID, MessageTypeProgress, state)
		})

		// The slot is free before the outcome is queued.
		c.mu.Lock()
		c.solveCancel = nil
		c.mu.Unlock()
		cancel()

		if err != nil {
			c.sendError(requestID, errorCode(err), err.Error())
			return
		}
		c.reply(requestID, MessageTypeResult, rec)
	}()
}

func (c *Connection) reply(requestID string, t MessageType, data any) {
	msg, err := NewMessage(t, data, c.server.clock.Now())
	if err != nil {
		c.logger.Error("Failed to encode message", "type", t, "error", err)
		return
	}
	msg.RequestID = requestID
	_ = c.SendMessage(msg)
}

func (c *Connection) sendError(requestID, code, message string) {
	c.reply(requestID, MessageTypeError, ErrorData{Code: code, Message: message})
}
