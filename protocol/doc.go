// Package protocol defines the wire format between shape room clients and the server.
//
// Incoming frames are an envelope naming an action plus a payload:
//
//	{"action": "move", "payload": {"x": 1, "y": 0, "z": -4}}
//
// Text frames carry JSON; binary frames carry msgpack with the same field
// names. Decode turns a frame into one of the engine.Action variants and
// rejects anything else before it reaches a room.
//
// Outgoing events are snapshot, playerJoined, playerLeft, playerUpdated and
// error, encoded in the format the connection asked for.
package protocol
