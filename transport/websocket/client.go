package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/wricardo/mcp-training/shapesync/game/engine"
	"github.com/wricardo/mcp-training/shapesync/game/room"
	"github.com/wricardo/mcp-training/shapesync/protocol"
	"golang.org/x/time/rate"
)

// Client is one WebSocket connection. It is the room.Sender of its session.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	format  protocol.Format
	send    chan []byte
	limiter *rate.Limiter
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// set once the join succeeded, before readPump starts
	room      *room.Room
	sessionID string

	closeOnce   sync.Once
	closed      chan struct{}
	closeCode   int
	closeReason string
}

func newClient(h *Hub, conn *websocket.Conn, format protocol.Format) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	size := h.opts.SendBuffer
	if size <= 0 {
		size = 256
	}
	return &Client{
		hub:     h,
		conn:    conn,
		format:  format,
		send:    make(chan []byte, size),
		limiter: rate.NewLimiter(rate.Limit(h.opts.RateLimit), h.opts.RateBurst),
		log:     h.log.With().Str("remote", conn.RemoteAddr().String()).Logger(),
		ctx:     ctx,
		cancel:  cancel,
		closed:  make(chan struct{}),
	}
}

func (c *Client) attach(r *room.Room, sessionID string) {
	c.room = r
	c.sessionID = sessionID
}

// Send encodes ev and queues it without blocking. A client whose buffer is
// full is disconnected.
func (c *Client) Send(ev protocol.Event) {
	data, err := protocol.Encode(c.format, ev)
	if err != nil {
		c.log.Error().Err(err).Str("event", string(ev.Type)).Msg("failed to encode event")
		return
	}

	select {
	case <-c.closed:
		return
	default:
	}

	select {
	case c.send <- data:
	default:
		c.log.Warn().Msg("send buffer full, dropping client")
		c.closeWith(websocket.ClosePolicyViolation, "send buffer overflow")
	}
}

// Close disconnects the client; used when its room shuts down.
func (c *Client) Close() {
	c.closeWith(websocket.CloseGoingAway, "room closed")
}

func (c *Client) closeWith(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.closed)
		c.cancel()
	})
}

func (c *Client) messageType() int {
	if c.format == protocol.FormatMsgpack {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

// readPump pumps messages from the WebSocket connection to the room
func (c *Client) readPump() {
	log := c.log.With().Str("room", c.room.Name).Str("session", c.sessionID).Logger()
	consented := false
	defer func() {
		c.hub.rooms.Leave(c.room, c.sessionID, consented)
		c.hub.unregisterClient(c)
		c.closeWith(websocket.CloseNormalClosure, "")
		c.conn.Close()
	}()

	pongWait := c.hub.opts.pongWait()
	c.conn.SetReadLimit(c.hub.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			consented = websocket.IsCloseError(err, websocket.CloseNormalClosure)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if !c.limiter.Allow() {
			c.Send(protocol.ErrorEvent(protocol.CodeRateLimited, "too many messages"))
			continue
		}

		format := protocol.FormatJSON
		if messageType == websocket.BinaryMessage {
			format = protocol.FormatMsgpack
		}

		action, err := protocol.Decode(format, data)
		switch {
		case err == nil:
			if err := c.hub.rooms.Submit(c.ctx, c.room, c.sessionID, action); err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Warn().Err(err).Msg("room stopped accepting actions")
				}
				return
			}
		case errors.Is(err, protocol.ErrUnknownAction):
			log.Debug().Err(err).Msg("unknown action dropped")
		case engine.IsValidationError(err):
			c.Send(protocol.ErrorEvent(protocol.CodeValidation, err.Error()))
		default:
			log.Debug().Err(err).Msg("malformed message")
			c.Send(protocol.ErrorEvent(protocol.CodeMalformed, "malformed message"))
		}
	}
}

// writePump pumps events from the room to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.write(message); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-c.closed:
			// Flush what was queued before the close, then say goodbye
			for n := len(c.send); n > 0; n-- {
				if err := c.write(<-c.send); err != nil {
					return
				}
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(c.closeCode, c.closeReason))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, "")
				return
			}
		}
	}
}

func (c *Client) write(message []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(c.messageType(), message)
}
