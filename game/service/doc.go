// Package service provides the monitoring layer over the shape room server.
//
// The service package implements:
//   - Room listing and full room state reads
//   - Session listing and lookup
//   - Room type configuration listing
//   - Server statistics for health checks
//
// Core Interfaces:
//
// RoomService is the read-only interface used by the REST API and, through
// it, by the MCP monitor tools. RoomManager and ConfigManager are the parts of
// the room manager and the config manager it depends on.
//
// Architecture:
//
// The service layer sits between the monitoring transports and the room
// manager. It never mutates a room: room state is read through the room's own
// command queue, so a reported snapshot always falls between two processed
// client messages.
//
// Usage:
//
//	rooms := room.NewManager(configManager)
//	roomService := service.NewRoomService(rooms, configManager)
//
//	// List live rooms
//	infos, err := roomService.ListRooms(ctx)
//
//	// Read one room's players
//	detail, err := roomService.GetRoom(ctx, "game_room")
package service
