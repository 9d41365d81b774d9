// Package api provides the HTTP surface of the shape room server.
//
// The api package implements:
//   - Read-only monitoring endpoints over live rooms and sessions
//   - Room type configuration listing
//   - Prometheus metrics exposition
//   - WebSocket upgrade handling
//
// Endpoints:
//
// Monitoring:
//   - GET /api/health - Server status, counters and open connections
//   - GET /api/rooms - List live rooms
//   - GET /api/rooms/{name} - Room summary with every player's state
//   - GET /api/sessions?room=&limit= - List live sessions by join time
//   - GET /api/sessions/{id} - Get one session
//
// Configuration:
//   - GET /api/configs - List room types
//   - GET /api/configs/{name} - Get one room type
//
// Metrics:
//   - GET /metrics - Prometheus text exposition
//
// Realtime:
//   - GET /ws?room={name}&format=json|msgpack - Join a room
//
// Room state is never mutated over HTTP; every change goes through a
// WebSocket session.
//
// Usage:
//
//	server := api.NewServer(roomService, hub, registry, logger)
//	http.ListenAndServe(":3000", server)
//
// Error Handling:
//
// Errors are returned as JSON with an appropriate HTTP status code:
//
//	{
//	  "error": "room \"studio\": not found"
//	}
package api
