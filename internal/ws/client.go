package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// writeWait is the maximum time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// pongWait is the maximum time to wait for a pong reply from the peer.
	pongWait = 60 * time.Second
	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize is the maximum inbound message size in bytes. Clients
	// only send pongs and close frames.
	maxMessageSize = 512
)

// Client is one server-push WebSocket connection.
type Client struct {
	ID     string
	UserID string
	conn   *websocket.Conn
	send   chan []byte

	closeOnce sync.Once
	closing   chan closeFrame
	done      chan struct{}
}

type closeFrame struct {
	code int
	text string
}

// NewClient wraps an upgraded connection. Start the pumps with Run.
func NewClient(conn *websocket.Conn, userID string) *Client {
	return &Client{
		ID:      uuid.New().String(),
		UserID:  userID,
		conn:    conn,
		send:    make(chan []byte, 256),
		closing: make(chan closeFrame, 1),
		done:    make(chan struct{}),
	}
}

// Send queues data for the peer. It reports false when the client is gone or
// its buffer is full; a slow client is closed rather than allowed to build
// up memory.
func (c *Client) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		log.Warn().Str("component", "ws").Str("client", c.ID).Msg("send buffer full, closing")
		c.Close(websocket.ClosePolicyViolation, "too slow")
		return false
	}
}

// Close sends a close frame with code and text and tears the connection down.
func (c *Client) Close(code int, text string) {
	c.closeOnce.Do(func() {
		c.closing <- closeFrame{code: code, text: text}
	})
}

// Done is closed once both pumps have stopped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Run starts the read and write pumps and returns immediately.
func (c *Client) Run() {
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		c.readPump()
	}()
	go func() {
		c.writePump(readDone)
		_ = c.conn.Close()
		<-readDone
		close(c.done)
	}()
}

// readPump discards inbound frames and keeps the read deadline moving on
// pongs. It returns when the peer goes away.
func (c *Client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("component", "ws").Str("client", c.ID).Msg("read error")
			}
			return
		}
	}
}

func (c *Client) writePump(readDone <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case f := <-c.closing:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(f.code, f.text), time.Now().Add(writeWait))
			return

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-readDone:
			return
		}
	}
}
