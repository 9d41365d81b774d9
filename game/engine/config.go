package engine

import (
	"fmt"
	"regexp"
)

var roomNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidRoomName reports whether name may identify a room type.
func ValidRoomName(name string) bool {
	return roomNamePattern.MatchString(name)
}

// ValidateRoomConfig validates a room type configuration
func ValidateRoomConfig(config *RoomConfig) error {
	if config == nil {
		return fmt.Errorf("config validation: config is nil")
	}
	if config.Name == "" {
		return fmt.Errorf("config validation: name is required")
	}
	if !roomNamePattern.MatchString(config.Name) {
		return fmt.Errorf("config validation: name %q may only contain letters, digits, '_' and '-' (max 64)", config.Name)
	}
	if config.MaxPlayers < 1 || config.MaxPlayers > MaxRoomPlayers {
		return fmt.Errorf("config validation: max_players must be between 1 and %d, got %d", MaxRoomPlayers, config.MaxPlayers)
	}
	return nil
}

// DefaultRoomConfig returns the built-in room type used when no configuration files exist
func DefaultRoomConfig() *RoomConfig {
	return &RoomConfig{
		Name:        DefaultRoomName,
		Description: "Shared shape drawing room",
		MaxPlayers:  DefaultMaxPlayers,
	}
}
