package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/wricardo/mcp-training/shapesync/game/engine"
	"github.com/wricardo/mcp-training/shapesync/game/room"
	"github.com/wricardo/mcp-training/shapesync/game/session"
	"github.com/wricardo/mcp-training/shapesync/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed for a join to be answered by its room.
	joinWait = 10 * time.Second

	// Application close codes.
	CloseCapacityExceeded = 4001
	CloseRoomUnavailable  = 4002
	CloseUnknownRoom      = 4004
)

// Options tunes the connection handling.
type Options struct {
	// Maximum message size allowed from peer.
	MaxMessageSize int64

	// Send pings to peer with this period.
	PingInterval time.Duration

	// Pings the peer may leave unanswered before it is dropped.
	PingMaxRetries int

	// Inbound messages per second and burst per connection.
	RateLimit float64
	RateBurst int

	// Outbound events buffered per connection before it is dropped.
	SendBuffer int

	// Attempts at joining when a room is being disposed.
	JoinRetries int

	// Origins allowed to connect. Empty allows all (development).
	AllowedOrigins []string

	Logger zerolog.Logger
}

// DefaultOptions returns a 5s ping, 3 missed pongs and a 1 MiB payload cap.
func DefaultOptions() Options {
	return Options{
		MaxMessageSize: 1 << 20,
		PingInterval:   5 * time.Second,
		PingMaxRetries: 3,
		RateLimit:      30,
		RateBurst:      60,
		SendBuffer:     256,
		JoinRetries:    3,
		Logger:         zerolog.Nop(),
	}
}

// Validate rejects settings the connection pumps cannot run with.
func (o Options) Validate() error {
	switch {
	case o.MaxMessageSize <= 0:
		return fmt.Errorf("max message size must be positive, got %d", o.MaxMessageSize)
	case o.PingInterval <= 0:
		return fmt.Errorf("ping interval must be positive, got %s", o.PingInterval)
	case o.PingMaxRetries < 0:
		return fmt.Errorf("ping max retries must not be negative, got %d", o.PingMaxRetries)
	case o.RateLimit <= 0 || o.RateBurst < 1:
		return fmt.Errorf("rate limit and burst must be positive, got %g/%d", o.RateLimit, o.RateBurst)
	case o.SendBuffer < 1:
		return fmt.Errorf("send buffer must be positive, got %d", o.SendBuffer)
	}
	return nil
}

// pongWait is how long a connection may stay silent before it is dropped.
func (o Options) pongWait() time.Duration {
	return o.PingInterval * time.Duration(o.PingMaxRetries+1)
}

// Rooms is the part of the room manager the transport drives.
type Rooms interface {
	Join(ctx context.Context, roomName string, sender room.Sender) (*room.Room, *session.Session, error)
	Leave(r *room.Room, sessionID string, consented bool)
	Submit(ctx context.Context, r *room.Room, sessionID string, action engine.Action) error
}

// Hub maintains the set of active connections
type Hub struct {
	rooms    Rooms
	opts     Options
	upgrader websocket.Upgrader
	log      zerolog.Logger

	// Registered clients
	clients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	count atomic.Int64
}

// NewHub creates a new WebSocket hub
func NewHub(rooms Rooms, opts Options) *Hub {
	h := &Hub{
		rooms:      rooms,
		opts:       opts,
		log:        opts.Logger,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Run starts the hub's event loop. When ctx ends every connection is closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int64(len(h.clients)))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.count.Store(int64(len(h.clients)))
			}

		case <-ctx.Done():
			for client := range h.clients {
				client.closeWith(websocket.CloseGoingAway, "server shutting down")
			}
			h.log.Info().Int("clients", len(h.clients)).Msg("websocket hub stopped")
			return
		}
	}
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	return int(h.count.Load())
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}

// ServeWS upgrades the request and joins the connection to roomName.
// The ?format= query selects json (default) or msgpack for outbound events.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, roomName string) {
	format, err := protocol.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newClient(h, conn, format)
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()

	joined, sess, err := h.join(roomName, client)
	if err != nil {
		code, reason, message := closeCodeFor(err)
		client.log.Info().Str("room", roomName).Err(err).Msg("join failed")
		client.Send(protocol.ErrorEvent(reason, message))
		client.closeWith(code, reason)
		h.unregisterClient(client)
		return
	}

	client.attach(joined, sess.ID)
	go client.readPump()
}

func (h *Hub) join(roomName string, client *Client) (*room.Room, *session.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), joinWait)
	defer cancel()

	attempts := h.opts.JoinRetries
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		var r *room.Room
		var sess *session.Session
		r, sess, err = h.rooms.Join(ctx, roomName, client)
		if err == nil {
			return r, sess, nil
		}
		if !errors.Is(err, room.ErrRoomUnavailable) {
			break
		}
	}
	return nil, nil, err
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// closeCodeFor maps a join error to a close code, an error code and the
// message the client sees. The wrapped cause stays in the server log.
func closeCodeFor(err error) (int, string, string) {
	switch {
	case errors.Is(err, engine.ErrCapacityExceeded):
		return CloseCapacityExceeded, protocol.CodeCapacityExceeded, engine.ErrCapacityExceeded.Error()
	case errors.Is(err, room.ErrUnknownRoomType):
		return CloseUnknownRoom, protocol.CodeUnknownRoom, room.ErrUnknownRoomType.Error()
	case errors.Is(err, room.ErrRoomUnavailable), errors.Is(err, room.ErrManagerClosed):
		return CloseRoomUnavailable, protocol.CodeRoomUnavailable, room.ErrRoomUnavailable.Error()
	default:
		return websocket.CloseInternalServerErr, protocol.CodeInternal, "internal error"
	}
}
