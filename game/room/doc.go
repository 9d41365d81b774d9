// Package room runs the authoritative shape rooms.
//
// A Manager maps room types to live Room instances. The first join to a room
// type creates its Room and starts a worker goroutine; the worker is the only
// code that touches the room's engine.RoomState. Joins, leaves, client
// actions, state reads and shutdown requests all travel through one ordered
// queue, so for any message the mutation and its broadcast hand-off finish
// before the next message is read.
//
// Lifecycle:
//
//	Created -> Active -> Disposing -> Disposed
//
// A room becomes Active with its first member. When the last member leaves
// and nothing is queued, the worker detaches the room from the manager,
// answers queued joins with ErrRoomUnavailable and exits. A later join to the
// same room type starts a new instance.
//
// Events:
//
// A joining session receives a snapshot before anything else, then every
// member receives playerJoined. Accepted actions become playerUpdated for the
// whole room; rejected ones become an error event for the sender only. Every
// room event carries a sequence number that increases by one per event.
//
// Delivery goes through the Sender interface, which must not block. The
// websocket transport implements it with a bounded buffer per connection.
package room
