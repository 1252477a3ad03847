package realtime

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/retroflect/backend/pkg/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Clients only consume, so
	// anything beyond a control frame is suspect.
	maxMessageSize = 512
)

// Client is one websocket connection watching a board
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	boardID uuid.UUID
	send    chan []byte
}

// NewClient wraps an upgraded connection for the given board
func NewClient(hub *Hub, conn *websocket.Conn, boardID uuid.UUID) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		boardID: boardID,
		send:    make(chan []byte, 16),
	}
}

// ReadPump drains the connection until the peer goes away. Clients never send
// application messages; the loop only services control frames and detects
// disconnects.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logger.Warn.Printf("realtime: unexpected close: %v", err)
			}
			return
		}
	}
}

// WritePump writes events from the hub to the connection, one frame per
// event, and keeps the connection alive with pings. The hub closes the send
// channel when the client is evicted, which ends the loop.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
