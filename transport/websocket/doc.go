// Package websocket provides the WebSocket transport for shape rooms.
//
// The websocket package implements:
//   - Connection upgrade with an origin allow list
//   - Room join on connect, with application close codes on failure
//   - Heartbeats, read limits and per-connection rate limiting
//   - JSON text frames or msgpack binary frames per connection
//
// Architecture:
//
// A central Hub tracks open connections. Each Client runs a read pump that
// decodes frames into actions and submits them to its room, and a write pump
// that drains a bounded buffer of encoded events. The Client is the room's
// Sender for its session: the room worker never blocks on it, and a client
// that falls behind far enough to fill its buffer is disconnected.
//
// Message Protocol:
//
//   - Incoming: {"action": "draw", "payload": {"points": [...]}}
//   - Outgoing: snapshot, playerJoined, playerLeft, playerUpdated, error
//
// Clients pick the room with ?room=<name> and the outbound encoding with
// ?format=json|msgpack. A failed join sends an error event and closes with
// 4001 (room full), 4002 (room unavailable) or 4004 (unknown room).
//
// Disconnects:
//
// A client close frame with status 1000 is a consented leave. Any other end
// of the connection, including missed pongs, is an unconsented leave; both
// remove the player and notify the rest of the room.
//
// Usage:
//
//	hub := websocket.NewHub(roomManager, websocket.DefaultOptions())
//	go hub.Run(ctx)
//
//	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, r.URL.Query().Get("room"))
//	})
package websocket
