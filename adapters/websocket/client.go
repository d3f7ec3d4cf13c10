package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
	"github.com/satriahrh/cocoa-fruit/gateway/utils/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512 * 1024 // audio chunks
	sendBuffer     = 256
)

// Client is one browser connected to /ws/realtime. Frames read from the socket
// are delivered on Inbound; frames queued with SendFrame are written in order.
type Client struct {
	conn    *websocket.Conn
	userID  string
	send    chan []byte
	inbound chan domain.RealtimeFrame
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
}

func NewClient(ctx context.Context, conn *websocket.Conn, userID string) *Client {
	ctx, cancel := context.WithCancel(log.WithUserID(ctx, userID))
	return &Client{
		conn:    conn,
		userID:  userID,
		send:    make(chan []byte, sendBuffer),
		inbound: make(chan domain.RealtimeFrame),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

func (c *Client) Run() {
	c.setupHandlers()

	go c.readPump()
	go c.writePump()
}

func (c *Client) setupHandlers() {
	c.conn.SetCloseHandler(func(code int, text string) error {
		log.WithCtx(c.ctx).Debug("WebSocket connection closed", zap.Int("code", code), zap.String("text", text))
		c.cancel()
		return nil
	})

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// Close stops accepting frames. Frames already queued are flushed before the
// socket is closed; Done reports when that has happened.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Client) Context() context.Context {
	return c.ctx
}

func (c *Client) Inbound() <-chan domain.RealtimeFrame {
	return c.inbound
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) UserID() string {
	return c.userID
}

func (c *Client) readPump() {
	defer func() {
		close(c.inbound)
		c.cancel()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.WithCtx(c.ctx).Error("WebSocket error", zap.Error(err))
			}
			return
		}

		var frame domain.RealtimeFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			_ = c.SendFrame(domain.RealtimeFrame{Type: domain.RealtimeError, Error: "Invalid message"})
			continue
		}
		select {
		case c.inbound <- frame:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.cancel()
		c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.WithCtx(c.ctx).Debug("Failed to write message", zap.Error(err))
				c.drain()
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.WithCtx(c.ctx).Debug("Failed to send ping", zap.Error(err))
				c.drain()
				return
			}
		}
	}
}

// drain discards queued frames until Close so senders never block on a dead
// socket.
func (c *Client) drain() {
	c.cancel()
	go func() {
		for range c.send {
		}
	}()
}

// SendFrame queues frame for the client. A full queue means the client cannot
// keep up; the frame is dropped and the session cancelled.
func (c *Client) SendFrame(frame domain.RealtimeFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		log.WithCtx(c.ctx).Warn("Client send queue full, dropping session")
		c.cancel()
		return websocket.ErrCloseSent
	}
}
