package engine

import "time"

// Category names the part of a PlayerState touched by a mutation.
type Category string

const (
	CategoryShape    Category = "shape"
	CategoryPosition Category = "position"
	CategoryColor    Category = "color"
	CategoryName     Category = "name"
	CategoryHeight   Category = "height"
)

const (
	// Validation constants
	MinShapeValues = 6
	MaxShapeValues = 200
	MinHeight      = 0.1
	MaxHeight      = 10.0
	MaxCoordinate  = 100.0
	MaxNameLength  = 20

	DefaultColor  = "#ffffff"
	DefaultHeight = 1.0

	// Room defaults
	DefaultRoomName   = "game_room"
	DefaultMaxPlayers = 10
	MaxRoomPlayers    = 64
)

// PlayerState is the authoritative record of one session's contribution to the scene.
type PlayerState struct {
	Name        string    `json:"name" msgpack:"name"`
	Color       string    `json:"color" msgpack:"color"`
	X           float64   `json:"x" msgpack:"x"`
	Y           float64   `json:"y" msgpack:"y"`
	Z           float64   `json:"z" msgpack:"z"`
	Shape       []float64 `json:"shape" msgpack:"shape"`
	Height      float64   `json:"height" msgpack:"height"`
	IsActive    bool      `json:"isActive" msgpack:"isActive"`
	LastUpdated int64     `json:"lastUpdated" msgpack:"lastUpdated"` // unix millis
}

// Position is the wire value of the position category.
type Position struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
}

// NewPlayerState returns the record a session starts with.
func NewPlayerState(now time.Time) *PlayerState {
	return &PlayerState{
		Color:       DefaultColor,
		Shape:       []float64{},
		Height:      DefaultHeight,
		IsActive:    true,
		LastUpdated: now.UnixMilli(),
	}
}

// Clone returns a deep copy.
func (p *PlayerState) Clone() PlayerState {
	c := *p
	c.Shape = append(make([]float64, 0, len(p.Shape)), p.Shape...)
	return c
}

// Value returns the current value of a category, as carried by update notices.
func (p *PlayerState) Value(category Category) any {
	switch category {
	case CategoryShape:
		return append(make([]float64, 0, len(p.Shape)), p.Shape...)
	case CategoryPosition:
		return Position{X: p.X, Y: p.Y, Z: p.Z}
	case CategoryColor:
		return p.Color
	case CategoryName:
		return p.Name
	case CategoryHeight:
		return p.Height
	default:
		return nil
	}
}

// ChangeDescriptor records which session changed which category.
type ChangeDescriptor struct {
	SessionID string   `json:"id"`
	Category  Category `json:"category"`
}

// Snapshot is the complete mapping of session id to PlayerState for a room.
type Snapshot map[string]PlayerState

// RoomConfig describes a room type that clients can join.
type RoomConfig struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	MaxPlayers  int    `json:"max_players"`
}
