package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wricardo/mcp-training/shapesync/game/config"
	"github.com/wricardo/mcp-training/shapesync/game/engine"
	"github.com/wricardo/mcp-training/shapesync/game/room"
	"github.com/wricardo/mcp-training/shapesync/game/session"
)

var ErrNotFound = errors.New("not found")

// roomServiceImpl implements the RoomService interface
type roomServiceImpl struct {
	rooms     RoomManager
	configs   ConfigManager
	startedAt time.Time
	now       func() time.Time
}

// NewRoomService creates a new room service instance
func NewRoomService(rooms RoomManager, configs ConfigManager) RoomService {
	return &roomServiceImpl{
		rooms:     rooms,
		configs:   configs,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// ListRooms returns summaries of every live room
func (s *roomServiceImpl) ListRooms(ctx context.Context) ([]room.Info, error) {
	return s.rooms.List(), nil
}

// GetRoom reads a room's full state through its queue
func (s *roomServiceImpl) GetRoom(ctx context.Context, name string) (*room.Detail, error) {
	detail, err := s.rooms.Snapshot(ctx, name)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) || errors.Is(err, room.ErrRoomUnavailable) {
			return nil, fmt.Errorf("room %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read room %q: %w", name, err)
	}
	return detail, nil
}

// ListSessions returns live sessions ordered by join time
func (s *roomServiceImpl) ListSessions(ctx context.Context, opts SessionFilter) ([]session.Info, error) {
	all := s.rooms.Registry().List()

	result := make([]session.Info, 0, len(all))
	for _, info := range all {
		if opts.Room != "" && info.Room != opts.Room {
			continue
		}
		result = append(result, info)
	}

	if opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}
	return result, nil
}

// GetSession returns one live session
func (s *roomServiceImpl) GetSession(ctx context.Context, id string) (*session.Info, error) {
	sess, err := s.rooms.Registry().Get(id)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
		}
		return nil, err
	}
	info := sess.Info()
	return &info, nil
}

// ListConfigs returns the available room types
func (s *roomServiceImpl) ListConfigs(ctx context.Context) ([]*config.ConfigInfo, error) {
	return s.configs.ListConfigs()
}

// GetConfig returns one room type
func (s *roomServiceImpl) GetConfig(ctx context.Context, name string) (*engine.RoomConfig, error) {
	if def := s.configs.GetDefault(); def != nil && def.Name == name {
		return def, nil
	}

	cfg, err := s.configs.LoadConfig(name)
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			return nil, fmt.Errorf("config %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load config %s: %w", name, err)
	}
	return cfg, nil
}

// Stats summarizes rooms and sessions
func (s *roomServiceImpl) Stats(ctx context.Context) (*Stats, error) {
	registry := s.rooms.Registry()
	rooms := s.rooms.List()
	stats := &Stats{
		Rooms:        len(rooms),
		Sessions:     registry.Count(),
		RoomSessions: make(map[string]int, len(rooms)),
		StartedAt:    s.startedAt,
		Uptime:       s.now().Sub(s.startedAt),
	}
	for _, info := range rooms {
		stats.RoomSessions[info.Name] = registry.CountInRoom(info.ID)
	}
	if def := s.configs.GetDefault(); def != nil {
		stats.DefaultRoom = def.Name
	}
	return stats, nil
}
