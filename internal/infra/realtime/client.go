package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fasthttp/websocket"
)

const (
	sendBuffer     = 256
	maxFrameSize   = 64 * 1024
	defaultWriteTo = 10 * time.Second
)

type connState int32

const (
	stateUnauthenticated connState = iota
	stateAuthenticated
	stateJoined
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateUnauthenticated:
		return "unauthenticated"
	case stateAuthenticated:
		return "authenticated"
	case stateJoined:
		return "joined"
	default:
		return "closed"
	}
}

// Client is one live socket. Rooms are guarded by the hub lock.
type Client struct {
	conn      *websocket.Conn
	hub       *Hub
	userID    string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	state     atomic.Int32
	rooms     map[string]struct{}
}

func newClient(conn *websocket.Conn, hub *Hub) *Client {
	c := &Client{
		conn:  conn,
		hub:   hub,
		send:  make(chan []byte, sendBuffer),
		done:  make(chan struct{}),
		rooms: make(map[string]struct{}),
	}
	c.state.Store(int32(stateUnauthenticated))
	return c
}

func (c *Client) State() connState {
	return connState(c.state.Load())
}

func (c *Client) advance(to connState) {
	c.state.Store(int32(to))
}

// enqueue hands a frame to the write pump without blocking.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.advance(stateClosed)
		close(c.done)
	})
}

func (c *Client) reply(event string, ack json.RawMessage, payload any) {
	frame, err := encodeFrame(event, ack, payload)
	if err != nil {
		c.hub.logger.Error("frame encode failed", "event", event, "error", err)
		return
	}
	if !c.enqueue(frame) {
		c.close()
	}
}

// readPump decodes frames and hands them to dispatch one at a time, so a
// sender's messages are handled in the order they were written.
func (c *Client) readPump(ctx context.Context, pongWait time.Duration, dispatch func(context.Context, *Client, Frame)) {
	defer c.close()
	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("socket read ended", "user_id", c.userID, "error", err)
			}
			return
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			c.hub.logger.Debug("malformed frame ignored", "user_id", c.userID)
			continue
		}
		dispatch(ctx, c, frame)
	}
}

func (c *Client) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(defaultWriteTo))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(defaultWriteTo))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
