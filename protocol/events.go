package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/wricardo/mcp-training/shapesync/game/engine"
)

// EventType names a server to client event.
type EventType string

const (
	EventSnapshot      EventType = "snapshot"
	EventPlayerJoined  EventType = "playerJoined"
	EventPlayerLeft    EventType = "playerLeft"
	EventPlayerUpdated EventType = "playerUpdated"
	EventError         EventType = "error"
)

// Error codes carried by error events.
const (
	CodeValidation       = "validation"
	CodeCapacityExceeded = "capacity_exceeded"
	CodeRoomUnavailable  = "room_unavailable"
	CodeUnknownRoom      = "unknown_room"
	CodeRateLimited      = "rate_limited"
	CodeMalformed        = "malformed"
	CodeInternal         = "internal"
)

// Event is one outbound message. Seq orders the broadcasts of a single room;
// it is zero for events addressed to one session outside that order (errors).
type Event struct {
	Type     EventType        `json:"type" msgpack:"type"`
	Seq      uint64           `json:"seq,omitempty" msgpack:"seq,omitempty"`
	RoomID   string           `json:"roomId,omitempty" msgpack:"roomId,omitempty"`
	ID       string           `json:"id,omitempty" msgpack:"id,omitempty"`
	Category engine.Category  `json:"category,omitempty" msgpack:"category,omitempty"`
	Value    any              `json:"value,omitempty" msgpack:"value,omitempty"`
	Players  *engine.Snapshot `json:"players,omitempty" msgpack:"players,omitempty"`
	Message  string           `json:"message,omitempty" msgpack:"message,omitempty"`
	Code     string           `json:"code,omitempty" msgpack:"code,omitempty"`
}

// SnapshotEvent carries the full room state to a joining session.
func SnapshotEvent(roomID string, seq uint64, snap engine.Snapshot) Event {
	if snap == nil {
		snap = engine.Snapshot{}
	}
	return Event{Type: EventSnapshot, Seq: seq, RoomID: roomID, Players: &snap}
}

// JoinedEvent announces a new session.
func JoinedEvent(seq uint64, sessionID string) Event {
	return Event{Type: EventPlayerJoined, Seq: seq, ID: sessionID}
}

// LeftEvent announces a departed session.
func LeftEvent(seq uint64, sessionID string) Event {
	return Event{Type: EventPlayerLeft, Seq: seq, ID: sessionID}
}

// UpdatedEvent announces a change of one category together with its new value.
func UpdatedEvent(seq uint64, change engine.ChangeDescriptor, value any) Event {
	return Event{Type: EventPlayerUpdated, Seq: seq, ID: change.SessionID, Category: change.Category, Value: value}
}

// ErrorEvent reports a rejected request to its sender.
func ErrorEvent(code, message string) Event {
	return Event{Type: EventError, Code: code, Message: message}
}

// Encode serializes an event in the given format.
func Encode(format Format, ev Event) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.Marshal(ev)
	case FormatMsgpack:
		return msgpack.Marshal(ev)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
