// internal/websocket/client.go
package websocket

import (
	"context"
	"log"
	"sync"
	"time"

	wstypes "sessiongate-service/internal/domain/websocket"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	send         chan []byte
	userID       int64
	sessionToken string

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, userID int64, sessionToken string) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, 16),
		userID:       userID,
		sessionToken: sessionToken,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// ReadPump handles incoming messages from client
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			_, message, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}

			c.handleMessage(message)
		}
	}
}

// WritePump handles outgoing messages to client
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	msg, err := wstypes.ParseMessage(data)
	if err != nil {
		c.SendError("invalid_message", "Failed to parse message")
		return
	}

	switch msg.Type {
	case wstypes.EventTypePing:
		c.SendMessage(wstypes.NewMessage(wstypes.EventTypePong, nil))
	}
}

// SendMessage sends a message to the client
func (c *Client) SendMessage(msg *wstypes.WSMessage) {
	data, err := msg.ToJSON()
	if err != nil {
		log.Printf("failed to marshal message: %v", err)
		return
	}

	select {
	case c.send <- data:
	case <-c.ctx.Done():
	default:
		// Slow consumer: drop the message and cancel the client. The
		// pumps notice the cancellation and drive the unregister from
		// their own goroutines; blocking here would wedge the hub loop,
		// which calls SendMessage during delivery.
		log.Printf("websocket send buffer full, dropping client: user=%d", c.userID)
		c.cancel()
	}
}

// SendError sends an error message to the client
func (c *Client) SendError(code, message string) {
	c.SendMessage(wstypes.NewMessage(wstypes.EventTypeError, wstypes.ErrorData{
		Code:    code,
		Message: message,
	}))
}

// Close gracefully closes the client connection. Only Close closes the
// send channel, and only once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
	})
}
