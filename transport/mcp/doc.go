// Package mcp provides a Model Context Protocol monitor for the shape room server.
//
// The mcp package implements:
//   - MCP server for AI agent integration
//   - Read-only tools that proxy to the REST API
//   - Stdio transport through mark3labs/mcp-go
//
// MCP Tools:
//   - server_health: Server status with room, session and connection counts
//   - list_rooms: List live rooms
//   - get_room: Room summary with every player's state
//   - list_sessions: List sessions, optionally filtered by room type
//   - get_session: Get specific session details
//   - list_configs: List room types
//   - protocol_instructions: Client messages, server events and close codes
//
// Tools never change room state. Players mutate their records only over the
// WebSocket transport.
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:3000")
//	server.ServeStdio(client.GetMCPServer())
package mcp
