package main

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wricardo/mcp-training/shapesync/game/engine"
	"github.com/wricardo/mcp-training/shapesync/protocol"
)

// Stats counts what one client saw.
type Stats struct {
	Sent      int
	Events    map[protocol.EventType]int
	Errors    map[string]int
	OwnID     string
	LastSeq   uint64
	OutOfSeq  int
	CloseCode int
}

// Client is one simulated player connected over WebSocket.
type Client struct {
	conn   *websocket.Conn
	format protocol.Format
	done   chan struct{}

	mu    sync.Mutex
	stats Stats
	ready chan struct{}
}

// wsURL builds the room URL from the server base URL.
func wsURL(base, room string, format protocol.Format) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws", "":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"

	q := url.Values{}
	if room != "" {
		q.Set("room", room)
	}
	q.Set("format", string(format))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial connects to a room and starts reading events.
func Dial(ctx context.Context, base, room string, format protocol.Format) (*Client, error) {
	target, err := wsURL(base, room, format)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}

	c := &Client{
		conn:   conn,
		format: format,
		done:   make(chan struct{}),
		ready:  make(chan struct{}),
		stats: Stats{
			Events: make(map[protocol.EventType]int),
			Errors: make(map[string]int),
		},
	}
	go c.readLoop()
	return c, nil
}

// WaitJoined blocks until the client knows its own session id.
func (c *Client) WaitJoined(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-c.done:
		return fmt.Errorf("connection closed before join (code %d)", c.Stats().CloseCode)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) readLoop() {
	defer close(c.done)

	snapshotSeen := false
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				c.mu.Lock()
				c.stats.CloseCode = ce.Code
				c.mu.Unlock()
			}
			return
		}

		format := protocol.FormatJSON
		if messageType == websocket.BinaryMessage {
			format = protocol.FormatMsgpack
		}
		ev, err := protocol.DecodeEvent(format, data)
		if err != nil {
			continue
		}

		c.mu.Lock()
		c.stats.Events[ev.Type]++
		if ev.Type == protocol.EventError {
			c.stats.Errors[ev.Code]++
		}
		if ev.Seq != 0 {
			if ev.Seq <= c.stats.LastSeq {
				c.stats.OutOfSeq++
			}
			c.stats.LastSeq = ev.Seq
		}
		// The first playerJoined after the snapshot announces this client
		if ev.Type == protocol.EventSnapshot {
			snapshotSeen = true
		} else if ev.Type == protocol.EventPlayerJoined && snapshotSeen && c.stats.OwnID == "" {
			c.stats.OwnID = ev.ID
			close(c.ready)
		}
		c.mu.Unlock()
	}
}

// Send writes one action frame.
func (c *Client) Send(action engine.Action) error {
	data, err := protocol.EncodeAction(c.format, action)
	if err != nil {
		return err
	}

	messageType := websocket.TextMessage
	if c.format == protocol.FormatMsgpack {
		messageType = websocket.BinaryMessage
	}
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		return err
	}

	c.mu.Lock()
	c.stats.Sent++
	c.mu.Unlock()
	return nil
}

// Close leaves the room with a normal closure and waits for the server to
// close its side.
func (c *Client) Close(wait time.Duration) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))

	select {
	case <-c.done:
	case <-time.After(wait):
	}
	c.conn.Close()
	return err
}

// Stats returns a copy of the counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Events = make(map[protocol.EventType]int, len(c.stats.Events))
	for k, v := range c.stats.Events {
		s.Events[k] = v
	}
	s.Errors = make(map[string]int, len(c.stats.Errors))
	for k, v := range c.stats.Errors {
		s.Errors[k] = v
	}
	return s
}
