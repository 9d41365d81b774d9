// Package config provides room type configuration for the shape room server.
//
// The config package handles:
//   - Loading room types from JSON files
//   - Validation of room names and capacities
//   - Default room type management
//   - Room type discovery and listing
//
// Configuration Format:
//
// Each room type is a JSON file in the configs directory, named after the
// room type it defines:
//
//	{
//	  "name": "game_room",
//	  "description": "Shared shape drawing room",
//	  "max_players": 10
//	}
//
// Clients join a room type by name. The manager picks game_room as the
// default; when no file defines it, the first valid file wins, and when the
// directory holds no valid file a built-in game_room with ten players is used.
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Resolve the room type named by a join request
//	roomConfig, err := manager.Resolve("game_room")
//
//	// List available room types
//	configs, err := manager.ListConfigs()
package config
