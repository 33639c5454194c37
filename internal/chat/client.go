package chat

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait   = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.

	// Room for the largest image body plus its envelope.
	frameOverhead = 64 * 1024
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	log  *slog.Logger
	id   string

	// Buffered channel of outbound events.
	send      chan Outbound
	closeOnce sync.Once
	dropOnce  sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, log *slog.Logger, id string, buffer int) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		log:  log.With("conn", id),
		id:   id,
		send: make(chan Outbound, buffer),
	}
}

func (c *Client) ID() string { return c.id }

// Deliver never blocks the hub. A client that cannot keep up is dropped.
func (c *Client) Deliver(evt Outbound) bool {
	select {
	case c.send <- evt:
		return true
	default:
		c.dropOnce.Do(func() {
			c.log.Warn("Slow client, closing connection", "buffered", len(c.send))
			_ = c.conn.Close()
		})
		return false
	}
}

// Close is called by the hub once the client is detached.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// readPump pumps frames from the websocket connection to the hub.
func (c *Client) readPump(readLimit int64) {
	defer func() {
		// Cleanup: if the connection dies, tell the hub to unregister
		c.hub.Unregister(c.id)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)

	// Heartbeat logic (Keep-Alive)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Info("Unexpected close", "error", err)
			}
			return
		}

		var in Inbound
		if err := json.Unmarshal(message, &in); err != nil {
			c.log.Debug("Dropping undecodable frame", "error", err)
			continue
		}
		if !IsInboundEvent(in.Event) {
			c.log.Debug("Dropping unknown event", "event", in.Event)
			continue
		}
		// PIPELINE: Browser -> readPump -> Hub.inbound
		if err := c.hub.Submit(c.id, in); err != nil {
			return
		}
	}
}

// writePump pumps events from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			// Set a write deadline so we don't hang forever
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(evt); err != nil {
				c.log.Debug("Write failed", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
