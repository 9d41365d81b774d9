package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRoomConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  *RoomConfig
		wantErr string
	}{
		{"default is valid", DefaultRoomConfig(), ""},
		{"nil", nil, "config is nil"},
		{"missing name", &RoomConfig{MaxPlayers: 4}, "name is required"},
		{"bad name", &RoomConfig{Name: "game room", MaxPlayers: 4}, "may only contain"},
		{"zero players", &RoomConfig{Name: "r", MaxPlayers: 0}, "max_players"},
		{"too many players", &RoomConfig{Name: "r", MaxPlayers: MaxRoomPlayers + 1}, "max_players"},
		{"single player room", &RoomConfig{Name: "solo", MaxPlayers: 1}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRoomConfig(tt.config)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
