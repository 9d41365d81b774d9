package service

import "time"

// SessionFilter narrows a session listing
type SessionFilter struct {
	Room  string `json:"room,omitempty"` // room type
	Limit int    `json:"limit,omitempty"`
}

// Stats summarizes the server for health checks
type Stats struct {
	Rooms        int            `json:"rooms"`
	Sessions     int            `json:"sessions"`
	RoomSessions map[string]int `json:"room_sessions"` // keyed by room type
	DefaultRoom  string         `json:"default_room"`
	StartedAt    time.Time      `json:"started_at"`
	Uptime       time.Duration  `json:"uptime_ns"`
}
