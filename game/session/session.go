package session

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidTransition = errors.New("invalid session state transition")

// State is the lifecycle position of a session.
type State int32

const (
	StateConnecting State = iota
	StateJoined
	StateLeft
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateLeft:
		return "left"
	default:
		return "unknown"
	}
}

// Session is one client's participation in one room.
// Its id is a random uuid and is never reused.
type Session struct {
	ID       string
	Room     string // room type
	RoomID   string
	JoinedAt time.Time

	state atomic.Int32
}

// New creates a session in the Connecting state.
func New(roomName string) *Session {
	return &Session{
		ID:   uuid.NewString(),
		Room: roomName,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Join moves a Connecting session to Joined inside roomID.
func (s *Session) Join(roomID string, at time.Time) error {
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateJoined)) {
		return ErrInvalidTransition
	}
	s.RoomID = roomID
	s.JoinedAt = at
	return nil
}

// Leave moves the session to Left. It reports false if it had already left.
func (s *Session) Leave() bool {
	return State(s.state.Swap(int32(StateLeft))) != StateLeft
}

// Info is the read-only view of a session used by listings.
type Info struct {
	ID       string    `json:"id"`
	Room     string    `json:"room"`
	RoomID   string    `json:"room_id"`
	State    string    `json:"state"`
	JoinedAt time.Time `json:"joined_at"`
}

// Info returns a listing view of the session.
func (s *Session) Info() Info {
	return Info{
		ID:       s.ID,
		Room:     s.Room,
		RoomID:   s.RoomID,
		State:    s.State().String(),
		JoinedAt: s.JoinedAt,
	}
}
