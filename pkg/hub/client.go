package hub

import (
	"strings"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// Browsers only send pongs and close frames.
	readLimit = 4 << 10
)

// Client is one browser connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan Message
	topics map[string]bool
}

// ParseTopics splits a comma separated ?topics= value.
func ParseTopics(s string) []string {
	var topics []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// NewClient registers conn with the hub. With no topics the client gets
// every message. If the hub has already stopped the client starts closed.
func NewClient(hub *Hub, conn *websocket.Conn, topics ...string) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan Message, 64),
	}
	if len(topics) > 0 {
		c.topics = make(map[string]bool, len(topics))
		for _, t := range topics {
			c.topics[t] = true
		}
	}

	select {
	case hub.register <- c:
	case <-hub.done:
		close(c.send)
	}
	return c
}

// wants reports whether msg passes the client's topic filter.
func (c *Client) wants(msg Message) bool {
	return msg.Topic == "" || c.topics == nil || c.topics[msg.Topic]
}

// Run serves the connection until either side closes it.
func (c *Client) Run() {
	go c.writeLoop()
	c.readLoop()
}

func (c *Client) readLoop() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			kind := websocket.TextMessage
			if msg.Kind == KindBinary {
				kind = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(kind, msg.Data); err != nil {
				return
			}

		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
