package engine

import (
	"math"
	"regexp"
	"strings"
	"time"
)

// Action names as they appear on the wire.
const (
	ActionDraw       = "draw"
	ActionExtrude    = "extrude"
	ActionMove       = "move"
	ActionSetName    = "setName"
	ActionSetColor   = "setColor"
	ActionClearScene = "clearScene"
)

// Action is one decoded client request. The set of implementations is closed.
type Action interface {
	Kind() string
	isAction()
}

// Draw replaces the player's 2D outline. Points are flattened x,z pairs.
type Draw struct {
	Points []float64
}

// Extrude sets the extrusion height of the player's shape.
type Extrude struct {
	Height float64
}

// Move places the player's shape in the scene.
type Move struct {
	X, Y, Z float64
}

// SetName sets the player's display name.
type SetName struct {
	Name string
}

// SetColor sets the player's color as #RRGGBB.
type SetColor struct {
	Color string
}

// ClearScene only clears the client's local meshes; the room ignores it.
type ClearScene struct{}

func (Draw) Kind() string       { return ActionDraw }
func (Extrude) Kind() string    { return ActionExtrude }
func (Move) Kind() string       { return ActionMove }
func (SetName) Kind() string    { return ActionSetName }
func (SetColor) Kind() string   { return ActionSetColor }
func (ClearScene) Kind() string { return ActionClearScene }

func (Draw) isAction()       {}
func (Extrude) isAction()    {}
func (Move) isAction()       {}
func (SetName) isAction()    {}
func (SetColor) isAction()   {}
func (ClearScene) isAction() {}

var (
	colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
	namePattern  = regexp.MustCompile(`^[A-Za-z0-9_\- ]+$`)
)

// Dispatch validates an action on behalf of sessionID and applies it to state.
// A nil descriptor with a nil error means the action was accepted but changed nothing.
func Dispatch(state *RoomState, sessionID string, action Action, now time.Time) (*ChangeDescriptor, error) {
	switch a := action.(type) {
	case Draw:
		return ApplyDraw(state, sessionID, a, now)
	case Extrude:
		return ApplyExtrude(state, sessionID, a, now)
	case Move:
		return ApplyMove(state, sessionID, a, now)
	case SetName:
		return ApplySetName(state, sessionID, a, now)
	case SetColor:
		return ApplySetColor(state, sessionID, a, now)
	case ClearScene:
		if _, err := state.player(sessionID); err != nil {
			return nil, err
		}
		return nil, nil
	default:
		return nil, ErrUnknownAction
	}
}

// ApplyDraw replaces the shape with the given outline
func ApplyDraw(state *RoomState, sessionID string, a Draw, now time.Time) (*ChangeDescriptor, error) {
	p, err := state.player(sessionID)
	if err != nil {
		return nil, err
	}
	if err := validateShape(a.Points); err != nil {
		return nil, err
	}

	p.Shape = append(make([]float64, 0, len(a.Points)), a.Points...)
	p.LastUpdated = now.UnixMilli()
	return &ChangeDescriptor{SessionID: sessionID, Category: CategoryShape}, nil
}

// ApplyExtrude stores the height clamped to [MinHeight, MaxHeight]
func ApplyExtrude(state *RoomState, sessionID string, a Extrude, now time.Time) (*ChangeDescriptor, error) {
	p, err := state.player(sessionID)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(a.Height) {
		return nil, invalid(ActionExtrude, "height", "must be a number")
	}

	p.Height = ClampHeight(a.Height)
	p.LastUpdated = now.UnixMilli()
	return &ChangeDescriptor{SessionID: sessionID, Category: CategoryHeight}, nil
}

// ApplyMove overwrites the position; out of range coordinates are rejected
func ApplyMove(state *RoomState, sessionID string, a Move, now time.Time) (*ChangeDescriptor, error) {
	p, err := state.player(sessionID)
	if err != nil {
		return nil, err
	}
	for _, c := range []struct {
		field string
		v     float64
	}{{"x", a.X}, {"y", a.Y}, {"z", a.Z}} {
		if err := validateCoordinate(c.field, c.v); err != nil {
			return nil, err
		}
	}

	p.X, p.Y, p.Z = a.X, a.Y, a.Z
	p.LastUpdated = now.UnixMilli()
	return &ChangeDescriptor{SessionID: sessionID, Category: CategoryPosition}, nil
}

// ApplySetName stores the trimmed name, truncated to MaxNameLength runes
func ApplySetName(state *RoomState, sessionID string, a SetName, now time.Time) (*ChangeDescriptor, error) {
	p, err := state.player(sessionID)
	if err != nil {
		return nil, err
	}
	name, err := NormalizeName(a.Name)
	if err != nil {
		return nil, err
	}

	p.Name = name
	p.LastUpdated = now.UnixMilli()
	return &ChangeDescriptor{SessionID: sessionID, Category: CategoryName}, nil
}

// ApplySetColor stores the color verbatim
func ApplySetColor(state *RoomState, sessionID string, a SetColor, now time.Time) (*ChangeDescriptor, error) {
	p, err := state.player(sessionID)
	if err != nil {
		return nil, err
	}
	if !colorPattern.MatchString(a.Color) {
		return nil, invalid(ActionSetColor, "color", "must match #RRGGBB")
	}

	p.Color = a.Color
	p.LastUpdated = now.UnixMilli()
	return &ChangeDescriptor{SessionID: sessionID, Category: CategoryColor}, nil
}

// ClampHeight bounds an extrusion height to [MinHeight, MaxHeight].
func ClampHeight(h float64) float64 {
	return math.Max(MinHeight, math.Min(MaxHeight, h))
}

// NormalizeName trims and truncates a requested name, then checks its charset.
func NormalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", invalid(ActionSetName, "name", "must not be empty")
	}
	if r := []rune(name); len(r) > MaxNameLength {
		name = string(r[:MaxNameLength])
	}
	if !namePattern.MatchString(name) {
		return "", invalid(ActionSetName, "name", "may only contain letters, digits, spaces, '_' and '-'")
	}
	return name, nil
}

func validateShape(points []float64) error {
	n := len(points)
	if n < MinShapeValues || n > MaxShapeValues {
		return invalid(ActionDraw, "points", "must hold between %d and %d values, got %d", MinShapeValues, MaxShapeValues, n)
	}
	if n%2 != 0 {
		return invalid(ActionDraw, "points", "must hold an even number of values, got %d", n)
	}
	for i, v := range points {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid(ActionDraw, "points", "value %d is not finite", i)
		}
	}
	return nil
}

func validateCoordinate(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return invalid(ActionMove, field, "is not finite")
	}
	if math.Abs(v) > MaxCoordinate {
		return invalid(ActionMove, field, "must be within ±%g, got %g", MaxCoordinate, v)
	}
	return nil
}
