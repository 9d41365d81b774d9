package room

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/wricardo/mcp-training/shapesync/game/engine"
	"github.com/wricardo/mcp-training/shapesync/game/session"
	"github.com/wricardo/mcp-training/shapesync/protocol"
)

// Lifecycle is the position of a room between creation and disposal.
type Lifecycle int32

const (
	Created Lifecycle = iota
	Active
	Disposing
	Disposed
)

func (l Lifecycle) String() string {
	switch l {
	case Created:
		return "created"
	case Active:
		return "active"
	case Disposing:
		return "disposing"
	case Disposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Info is a point-in-time summary of a room.
type Info struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Lifecycle string    `json:"lifecycle"`
	Players   int       `json:"player_count"`
	Capacity  int       `json:"capacity"`
	Seq       uint64    `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

// Detail is a room summary together with its full state, read through the
// room queue.
type Detail struct {
	Info
	Players engine.Snapshot `json:"players"`
}

// Room is one live instance of a room type. All state changes happen on its
// worker goroutine, which consumes commands in arrival order.
type Room struct {
	ID        string
	Name      string
	Capacity  int
	CreatedAt time.Time

	queue chan command
	done  chan struct{}

	lifecycle atomic.Int32
	players   atomic.Int32
	lastSeq   atomic.Uint64

	// worker-owned
	state   *engine.RoomState
	members map[string]*member
	seq     uint64

	manager *Manager
	bc      *broadcaster
	log     zerolog.Logger
}

type member struct {
	session *session.Session
	sender  Sender
}

type command interface{ isCommand() }

type joinCmd struct {
	session *session.Session
	sender  Sender
	reply   chan error
}

type leaveCmd struct {
	sessionID string
	consented bool
}

type actionCmd struct {
	sessionID string
	action    engine.Action
}

type snapshotCmd struct {
	reply chan Detail
}

type closeCmd struct{}

func (joinCmd) isCommand()     {}
func (leaveCmd) isCommand()    {}
func (actionCmd) isCommand()   {}
func (snapshotCmd) isCommand() {}
func (closeCmd) isCommand()    {}

// Lifecycle returns the current lifecycle state.
func (r *Room) Lifecycle() Lifecycle {
	return Lifecycle(r.lifecycle.Load())
}

// Done is closed once the room has been disposed.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// Info returns a summary without going through the queue.
func (r *Room) Info() Info {
	return Info{
		ID:        r.ID,
		Name:      r.Name,
		Lifecycle: r.Lifecycle().String(),
		Players:   int(r.players.Load()),
		Capacity:  r.Capacity,
		Seq:       r.lastSeq.Load(),
		CreatedAt: r.CreatedAt,
	}
}

func (r *Room) enqueue(ctx context.Context, cmd command) error {
	select {
	case <-r.done:
		return ErrRoomUnavailable
	default:
	}

	select {
	case r.queue <- cmd:
		return nil
	case <-r.done:
		return ErrRoomUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) run() {
	defer r.manager.wg.Done()

	for cmd := range r.queue {
		switch c := cmd.(type) {
		case joinCmd:
			r.handleJoin(c)
		case leaveCmd:
			r.handleLeave(c)
		case actionCmd:
			r.handleAction(c)
		case snapshotCmd:
			c.reply <- r.detail()
		case closeCmd:
			r.closeAll()
		}

		// A room that never had a member waits for its first join.
		if r.Lifecycle() != Created && len(r.members) == 0 && len(r.queue) == 0 {
			r.dispose()
			return
		}
	}
}

func (r *Room) nextSeq() uint64 {
	r.seq++
	r.lastSeq.Store(r.seq)
	return r.seq
}

func (r *Room) handleJoin(c joinCmd) {
	if r.Lifecycle() >= Disposing {
		c.reply <- ErrRoomUnavailable
		return
	}

	now := r.manager.clock()
	id := c.session.ID
	if err := r.state.AddPlayer(id, now); err != nil {
		r.manager.metrics.JoinsRejected.WithLabelValues(rejectReason(err)).Inc()
		r.log.Info().Str("session", id).Err(err).Msg("join rejected")
		c.reply <- err
		return
	}
	if err := c.session.Join(r.ID, now); err != nil {
		r.state.RemovePlayer(id)
		c.reply <- err
		return
	}

	r.members[id] = &member{session: c.session, sender: c.sender}
	if err := r.manager.registry.Add(c.session); err != nil {
		r.log.Warn().Str("session", id).Err(err).Msg("session registry add failed")
	}
	r.players.Store(int32(r.state.Len()))
	r.manager.metrics.SessionsActive.Inc()
	r.lifecycle.CompareAndSwap(int32(Created), int32(Active))

	r.bc.to(c.sender, protocol.SnapshotEvent(r.ID, r.nextSeq(), r.state.Snapshot()))
	r.bc.all(r.members, r.state.SessionIDs(), protocol.JoinedEvent(r.nextSeq(), id))

	r.log.Info().Str("session", id).Int("players", r.state.Len()).Msg("session joined")
	c.reply <- nil
}

func (r *Room) handleLeave(c leaveCmd) {
	m, ok := r.members[c.sessionID]
	if !ok {
		return
	}
	r.removeMember(c.sessionID, m)

	evt := r.log.Info()
	if !c.consented {
		evt = r.log.Warn()
	}
	evt.Str("session", c.sessionID).Bool("consented", c.consented).Int("players", r.state.Len()).Msg("session left")

	r.bc.all(r.members, r.state.SessionIDs(), protocol.LeftEvent(r.nextSeq(), c.sessionID))
}

func (r *Room) removeMember(id string, m *member) {
	delete(r.members, id)
	r.state.RemovePlayer(id)
	m.session.Leave()
	if err := r.manager.registry.Remove(id); err != nil {
		r.log.Debug().Str("session", id).Err(err).Msg("session registry remove failed")
	}
	r.players.Store(int32(r.state.Len()))
	r.manager.metrics.SessionsActive.Dec()
}

func (r *Room) handleAction(c actionCmd) {
	name := "unknown"
	if c.action != nil {
		name = c.action.Kind()
	}

	m, ok := r.members[c.sessionID]
	if !ok || m.session.State() != session.StateJoined {
		r.manager.metrics.Actions.WithLabelValues(name, "dropped").Inc()
		r.log.Debug().Str("session", c.sessionID).Str("action", name).Msg("action from non-member dropped")
		return
	}

	change, err := engine.Dispatch(r.state, c.sessionID, c.action, r.manager.clock())
	switch {
	case err == nil && change == nil:
		r.manager.metrics.Actions.WithLabelValues(name, "noop").Inc()

	case err == nil:
		r.manager.metrics.Actions.WithLabelValues(name, "applied").Inc()
		player, _ := r.state.Player(c.sessionID)
		ev := protocol.UpdatedEvent(r.nextSeq(), *change, player.Value(change.Category))
		r.bc.all(r.members, r.state.SessionIDs(), ev)

	case engine.IsValidationError(err):
		r.manager.metrics.Actions.WithLabelValues(name, "rejected").Inc()
		r.log.Debug().Str("session", c.sessionID).Err(err).Msg("action rejected")
		r.bc.to(m.sender, protocol.ErrorEvent(protocol.CodeValidation, err.Error()))

	case errors.Is(err, engine.ErrUnknownAction):
		r.manager.metrics.Actions.WithLabelValues(name, "dropped").Inc()
		r.log.Debug().Str("session", c.sessionID).Msg("unknown action dropped")

	default:
		r.manager.metrics.Actions.WithLabelValues(name, "failed").Inc()
		r.log.Error().Str("session", c.sessionID).Str("action", name).Err(err).Msg("action failed")
	}
}

func (r *Room) detail() Detail {
	return Detail{Info: r.Info(), Players: r.state.Snapshot()}
}

// closeAll disconnects every member; used on shutdown.
func (r *Room) closeAll() {
	r.lifecycle.Store(int32(Disposing))
	for _, id := range r.state.SessionIDs() {
		m := r.members[id]
		r.removeMember(id, m)
		m.sender.Close()
	}
}

// dispose detaches the room from its manager, answers anything still queued
// and stops the worker.
func (r *Room) dispose() {
	r.lifecycle.Store(int32(Disposing))
	r.manager.remove(r)

drain:
	for {
		select {
		case cmd := <-r.queue:
			switch c := cmd.(type) {
			case joinCmd:
				r.manager.metrics.JoinsRejected.WithLabelValues("unavailable").Inc()
				c.reply <- ErrRoomUnavailable
			case snapshotCmd:
				c.reply <- r.detail()
			}
		default:
			break drain
		}
	}

	r.lifecycle.Store(int32(Disposed))
	close(r.done)
	r.log.Info().Msg("room disposed")
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, engine.ErrCapacityExceeded):
		return "capacity"
	case errors.Is(err, engine.ErrDuplicateSession):
		return "duplicate"
	default:
		return "other"
	}
}
