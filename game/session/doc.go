// Package session tracks the clients connected to shape rooms.
//
// The session package implements:
//   - Session handles with random, never reused identifiers
//   - The Connecting, Joined and Left lifecycle
//   - A thread-safe registry of every live session in the process
//
// Core Types:
//
// Session represents one client's participation in one room. A room worker
// creates it in the Connecting state, moves it to Joined once the player
// record exists, and to Left when the client disconnects or leaves.
//
// Registry is the process-wide index used by the monitoring API and the
// metrics. Rooms own their sessions; the registry only holds references.
//
// Concurrency:
//
// The registry is guarded by a read/write mutex. Session state transitions
// are atomic, so a session can be inspected from any goroutine while its
// room worker moves it through the lifecycle.
//
// Usage:
//
//	registry := session.NewRegistry()
//
//	sess := session.New("game_room")
//	if err := sess.Join(roomID, time.Now()); err != nil {
//		return err
//	}
//	if err := registry.Add(sess); err != nil {
//		return err
//	}
//
//	// List all live sessions
//	sessions := registry.List()
package session
