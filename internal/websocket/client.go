package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"chat-realtime/internal/registry"
	"chat-realtime/pkg/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State is the lifecycle of one connection. Disconnected is terminal.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	id       registry.ConnID
	userID   int
	username string
	log      *zap.SugaredLogger

	state     atomic.Int32
	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, userID int, username string) *Client {
	id := registry.NewConnID()
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, hub.cfg.SendBuffer),
		done:     make(chan struct{}),
		id:       id,
		userID:   userID,
		username: username,
		log:      logger.With("conn_id", string(id), "user_id", userID),
	}
}

// Handle returns the registry handle for this client.
func (c *Client) Handle() registry.Conn {
	return registry.Conn{ID: c.id, UserID: c.userID, Username: c.username, Sink: c}
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// Send queues a frame without blocking. A client whose buffer is full is
// closed, which runs the normal disconnect path.
func (c *Client) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		c.log.Warnw("Send buffer full, closing connection", "buffer", cap(c.send))
		c.close()
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.disconnect(c)
		c.close()
		c.conn.Close()
	}()

	cfg := c.hub.cfg
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Errorw("WebSocket read error", "error", err)
			}
			return
		}

		// frames from one connection are handled in order
		c.hub.dispatch(c, message)
	}
}

func (c *Client) WritePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Errorw("WebSocket write error", "error", err)
				c.close()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
