package service

import (
	"context"

	"github.com/wricardo/mcp-training/shapesync/game/config"
	"github.com/wricardo/mcp-training/shapesync/game/engine"
	"github.com/wricardo/mcp-training/shapesync/game/room"
	"github.com/wricardo/mcp-training/shapesync/game/session"
)

// RoomService defines the read-only monitoring operations over live rooms
type RoomService interface {
	// Rooms
	ListRooms(ctx context.Context) ([]room.Info, error)
	GetRoom(ctx context.Context, name string) (*room.Detail, error)

	// Sessions
	ListSessions(ctx context.Context, opts SessionFilter) ([]session.Info, error)
	GetSession(ctx context.Context, id string) (*session.Info, error)

	// Configuration
	ListConfigs(ctx context.Context) ([]*config.ConfigInfo, error)
	GetConfig(ctx context.Context, name string) (*engine.RoomConfig, error)

	// Health
	Stats(ctx context.Context) (*Stats, error)
}

// RoomManager is the part of the room manager the service reads
type RoomManager interface {
	List() []room.Info
	Snapshot(ctx context.Context, name string) (*room.Detail, error)
	Registry() *session.Registry
}

// ConfigManager handles room type configuration loading
type ConfigManager interface {
	LoadConfig(name string) (*engine.RoomConfig, error)
	ListConfigs() ([]*config.ConfigInfo, error)
	GetDefault() *engine.RoomConfig
}
