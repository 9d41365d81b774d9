package room

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wricardo/mcp-training/shapesync/game/engine"
	"github.com/wricardo/mcp-training/shapesync/game/session"
)

const defaultQueueSize = 256

// RoomTypes resolves the room type a join request names.
type RoomTypes interface {
	Resolve(name string) (*engine.RoomConfig, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used by the manager and its rooms.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithMetrics sets the collectors updated by rooms.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithClock replaces time.Now as the source of lastUpdated timestamps.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithRegistry shares a session registry with other components.
func WithRegistry(registry *session.Registry) Option {
	return func(m *Manager) { m.registry = registry }
}

// WithQueueSize sets the per-room command queue capacity.
func WithQueueSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.queueSize = n
		}
	}
}

// Manager routes sessions to rooms, creating a room on first join and
// forgetting it once it has been disposed.
type Manager struct {
	types     RoomTypes
	registry  *session.Registry
	metrics   *Metrics
	log       zerolog.Logger
	clock     func() time.Time
	queueSize int

	mu     sync.Mutex
	rooms  map[string]*Room
	closed bool
	wg     sync.WaitGroup
}

// NewManager creates a room manager for the given room types
func NewManager(types RoomTypes, opts ...Option) *Manager {
	m := &Manager{
		types:     types,
		log:       zerolog.Nop(),
		clock:     time.Now,
		queueSize: defaultQueueSize,
		rooms:     make(map[string]*Room),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = session.NewRegistry()
	}
	if m.metrics == nil {
		m.metrics = NewMetrics(nil)
	}
	return m
}

// Registry returns the session registry the manager maintains.
func (m *Manager) Registry() *session.Registry {
	return m.registry
}

// Join places a new session for sender into the room of type roomName. On
// success the sender has already been handed the room snapshot followed by
// the playerJoined notice.
//
// Errors:
//   - ErrUnknownRoomType: roomName is not a configured room type
//   - engine.ErrCapacityExceeded: the room is full
//   - ErrRoomUnavailable: the room is being disposed; retrying creates a new one
//   - ErrManagerClosed: Shutdown has been called
func (m *Manager) Join(ctx context.Context, roomName string, sender Sender) (*Room, *session.Session, error) {
	cfg, err := m.types.Resolve(roomName)
	if err != nil {
		m.metrics.JoinsRejected.WithLabelValues("unknown_room").Inc()
		return nil, nil, fmt.Errorf("%w: %q: %v", ErrUnknownRoomType, roomName, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	r, created, err := m.roomFor(cfg)
	if err != nil {
		return nil, nil, err
	}
	if r.Lifecycle() >= Disposing {
		m.metrics.JoinsRejected.WithLabelValues("unavailable").Inc()
		return nil, nil, ErrRoomUnavailable
	}

	// A new room stays Created until its first join arrives, so that join is
	// always delivered.
	enqueueCtx := ctx
	if created {
		enqueueCtx = context.Background()
	}

	sess := session.New(cfg.Name)
	reply := make(chan error, 1)
	if err := r.enqueue(enqueueCtx, joinCmd{session: sess, sender: sender, reply: reply}); err != nil {
		return nil, nil, err
	}

	select {
	case err = <-reply:
	case <-r.done:
		select {
		case err = <-reply:
		default:
			err = ErrRoomUnavailable
		}
	}
	if err != nil {
		return nil, nil, err
	}
	return r, sess, nil
}

// roomFor returns the live room of a type, creating and starting it if needed.
// created reports whether this call started the room.
func (m *Manager) roomFor(cfg *engine.RoomConfig) (r *Room, created bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, false, ErrManagerClosed
	}
	if existing, ok := m.rooms[cfg.Name]; ok {
		return existing, false, nil
	}

	id := uuid.NewString()
	r = &Room{
		ID:        id,
		Name:      cfg.Name,
		Capacity:  cfg.MaxPlayers,
		CreatedAt: m.clock(),
		queue:     make(chan command, m.queueSize),
		done:      make(chan struct{}),
		state:     engine.NewRoomState(id, cfg.Name, cfg.MaxPlayers),
		members:   make(map[string]*member),
		manager:   m,
		bc:        &broadcaster{metrics: m.metrics},
		log:       m.log.With().Str("room", cfg.Name).Str("room_id", id).Logger(),
	}
	m.rooms[cfg.Name] = r
	m.metrics.RoomsActive.Inc()
	m.wg.Add(1)
	go r.run()

	r.log.Info().Int("capacity", cfg.MaxPlayers).Msg("room created")
	return r, true, nil
}

// remove forgets a disposing room; later joins create a fresh instance.
func (m *Manager) remove(r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.rooms[r.Name]; ok && current == r {
		delete(m.rooms, r.Name)
		m.metrics.RoomsActive.Dec()
	}
}

// Leave removes a session from its room. consented is false when the
// transport detected the disconnect; both paths broadcast playerLeft.
func (m *Manager) Leave(r *Room, sessionID string, consented bool) {
	// A disposed room has nothing left to remove.
	_ = r.enqueue(context.Background(), leaveCmd{sessionID: sessionID, consented: consented})
}

// Submit queues a decoded action for the session's room. It blocks while the
// room queue is full.
func (m *Manager) Submit(ctx context.Context, r *Room, sessionID string, action engine.Action) error {
	return r.enqueue(ctx, actionCmd{sessionID: sessionID, action: action})
}

// Get returns the live room of a type.
func (m *Manager) Get(name string) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[name]
	return r, ok
}

// List returns summaries of all live rooms ordered by name.
func (m *Manager) List() []Info {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	infos := make([]Info, 0, len(rooms))
	for _, r := range rooms {
		infos = append(infos, r.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Snapshot reads a room's full state through its queue, so the result sits
// between two processed messages.
func (m *Manager) Snapshot(ctx context.Context, name string) (*Detail, error) {
	r, ok := m.Get(name)
	if !ok {
		return nil, ErrRoomNotFound
	}

	reply := make(chan Detail, 1)
	if err := r.enqueue(ctx, snapshotCmd{reply: reply}); err != nil {
		return nil, err
	}

	select {
	case d := <-reply:
		return &d, nil
	case <-r.done:
		select {
		case d := <-reply:
			return &d, nil
		default:
			return nil, ErrRoomUnavailable
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops accepting joins, disconnects every session and waits for
// all room workers to exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	for _, r := range rooms {
		if err := r.enqueue(ctx, closeCmd{}); err != nil && err != ErrRoomUnavailable {
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.log.Info().Int("rooms", len(rooms)).Msg("room manager stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
