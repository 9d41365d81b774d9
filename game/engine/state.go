package engine

import (
	"sort"
	"time"
)

// RoomState holds the PlayerState of every live session in one room.
// It is not safe for concurrent use; a room worker owns it.
type RoomState struct {
	ID       string
	Name     string
	Capacity int
	players  map[string]*PlayerState
}

// NewRoomState creates an empty room state
func NewRoomState(id, name string, capacity int) *RoomState {
	return &RoomState{
		ID:       id,
		Name:     name,
		Capacity: capacity,
		players:  make(map[string]*PlayerState),
	}
}

// AddPlayer inserts a default PlayerState for a joining session
func (s *RoomState) AddPlayer(sessionID string, now time.Time) error {
	if _, exists := s.players[sessionID]; exists {
		return ErrDuplicateSession
	}
	if s.Full() {
		return ErrCapacityExceeded
	}
	s.players[sessionID] = NewPlayerState(now)
	return nil
}

// RemovePlayer drops the record of a departing session
func (s *RoomState) RemovePlayer(sessionID string) bool {
	if _, exists := s.players[sessionID]; !exists {
		return false
	}
	delete(s.players, sessionID)
	return true
}

// Player returns a copy of one session's record
func (s *RoomState) Player(sessionID string) (PlayerState, bool) {
	p, ok := s.players[sessionID]
	if !ok {
		return PlayerState{}, false
	}
	return p.Clone(), true
}

// Snapshot returns a deep copy of every record keyed by session id
func (s *RoomState) Snapshot() Snapshot {
	snap := make(Snapshot, len(s.players))
	for id, p := range s.players {
		snap[id] = p.Clone()
	}
	return snap
}

// SessionIDs returns the ids of all sessions in the room, sorted.
func (s *RoomState) SessionIDs() []string {
	ids := make([]string, 0, len(s.players))
	for id := range s.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of players in the room
func (s *RoomState) Len() int {
	return len(s.players)
}

// Full reports whether the room has reached its capacity
func (s *RoomState) Full() bool {
	return s.Capacity > 0 && len(s.players) >= s.Capacity
}

func (s *RoomState) player(sessionID string) (*PlayerState, error) {
	p, ok := s.players[sessionID]
	if !ok {
		return nil, ErrUnknownSession
	}
	return p, nil
}
