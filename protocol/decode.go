package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/wricardo/mcp-training/shapesync/game/engine"
)

// Format selects the frame encoding of a connection.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownFormat  = errors.New("unknown format")
	ErrUnknownAction  = engine.ErrUnknownAction
)

// ParseFormat maps a query value to a Format; empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatMsgpack:
		return FormatMsgpack, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

type jsonEnvelope struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

type msgpackEnvelope struct {
	Action  string             `msgpack:"action"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// Decode parses one client frame into an engine action.
//
// Errors:
//   - ErrMalformedFrame: the envelope itself could not be read
//   - ErrUnknownAction: the action name is not part of the protocol
//   - *engine.ValidationError: a known action carried a malformed payload
func Decode(format Format, data []byte) (engine.Action, error) {
	switch format {
	case FormatJSON:
		var env jsonEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return decodeAction(env.Action, func(v any) error {
			if len(env.Payload) == 0 {
				return nil
			}
			return json.Unmarshal(env.Payload, v)
		})

	case FormatMsgpack:
		var env msgpackEnvelope
		if err := msgpack.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		return decodeAction(env.Action, func(v any) error {
			if len(env.Payload) == 0 {
				return nil
			}
			return msgpack.Unmarshal(env.Payload, v)
		})

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

type drawPayload struct {
	Points *[]float64 `json:"points" msgpack:"points"`
}

type extrudePayload struct {
	Height *float64 `json:"height" msgpack:"height"`
}

type movePayload struct {
	X *float64 `json:"x" msgpack:"x"`
	Y *float64 `json:"y" msgpack:"y"`
	Z *float64 `json:"z" msgpack:"z"`
}

type setNamePayload struct {
	Name *string `json:"name" msgpack:"name"`
}

type setColorPayload struct {
	Color *string `json:"color" msgpack:"color"`
}

func decodeAction(name string, unmarshal func(v any) error) (engine.Action, error) {
	switch name {
	case engine.ActionDraw:
		var p drawPayload
		if err := unmarshal(&p); err != nil {
			return nil, badPayload(name, err)
		}
		if p.Points == nil {
			return nil, missingField(name, "points")
		}
		return engine.Draw{Points: *p.Points}, nil

	case engine.ActionExtrude:
		var p extrudePayload
		if err := unmarshal(&p); err != nil {
			return nil, badPayload(name, err)
		}
		if p.Height == nil {
			return nil, missingField(name, "height")
		}
		return engine.Extrude{Height: *p.Height}, nil

	case engine.ActionMove:
		var p movePayload
		if err := unmarshal(&p); err != nil {
			return nil, badPayload(name, err)
		}
		switch {
		case p.X == nil:
			return nil, missingField(name, "x")
		case p.Y == nil:
			return nil, missingField(name, "y")
		case p.Z == nil:
			return nil, missingField(name, "z")
		}
		return engine.Move{X: *p.X, Y: *p.Y, Z: *p.Z}, nil

	case engine.ActionSetName:
		var p setNamePayload
		if err := unmarshal(&p); err != nil {
			return nil, badPayload(name, err)
		}
		if p.Name == nil {
			return nil, missingField(name, "name")
		}
		return engine.SetName{Name: *p.Name}, nil

	case engine.ActionSetColor:
		var p setColorPayload
		if err := unmarshal(&p); err != nil {
			return nil, badPayload(name, err)
		}
		if p.Color == nil {
			return nil, missingField(name, "color")
		}
		return engine.SetColor{Color: *p.Color}, nil

	case engine.ActionClearScene:
		return engine.ClearScene{}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
}

func badPayload(action string, err error) error {
	return &engine.ValidationError{Action: action, Reason: fmt.Sprintf("malformed payload: %v", err)}
}

func missingField(action, field string) error {
	return &engine.ValidationError{Action: action, Field: field, Reason: "is required"}
}
