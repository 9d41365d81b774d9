// Package engine provides the authoritative scene model for shape rooms.
//
// The engine package implements:
//   - PlayerState, the per-session record (shape, color, position, height, name)
//   - RoomState, the mapping of session id to PlayerState for one room
//   - The action dispatcher: one pure handler per action kind
//   - Validation of every payload before any mutation
//   - Room type configuration validation
//
// Core Types:
//
// Action is a closed set of payload variants (Draw, Extrude, Move, SetName,
// SetColor, ClearScene). Dispatch matches on the variant and calls the
// corresponding Apply function, which either mutates the RoomState and returns
// a ChangeDescriptor or returns a *ValidationError and leaves state untouched.
//
// Usage:
//
//	state := engine.NewRoomState(id, "game_room", 10)
//	if err := state.AddPlayer(sessionID, time.Now()); err != nil {
//		return err
//	}
//
//	change, err := engine.Dispatch(state, sessionID, engine.Move{X: 1, Y: 2, Z: 3}, time.Now())
//	if err != nil {
//		// report err to the sender only
//	}
//
// Rules:
//
// Heights are clamped into [0.1, 10] because any number is a meaningful
// intent. Positions outside ±100 and malformed outlines are rejected since
// they cannot be sanitized without changing what the client drew.
//
// RoomState is not safe for concurrent use. The game/room package gives every
// room a single worker goroutine that owns its state.
package engine
