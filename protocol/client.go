package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/wricardo/mcp-training/shapesync/game/engine"
)

// Frame is one client request as sent on the wire.
type Frame struct {
	Action  string `json:"action" msgpack:"action"`
	Payload any    `json:"payload,omitempty" msgpack:"payload,omitempty"`
}

// EncodeAction serializes an action the way a client sends it. Decode is its
// inverse.
func EncodeAction(format Format, action engine.Action) ([]byte, error) {
	frame := Frame{Action: action.Kind()}
	switch a := action.(type) {
	case engine.Draw:
		frame.Payload = drawPayload{Points: &a.Points}
	case engine.Extrude:
		frame.Payload = extrudePayload{Height: &a.Height}
	case engine.Move:
		frame.Payload = movePayload{X: &a.X, Y: &a.Y, Z: &a.Z}
	case engine.SetName:
		frame.Payload = setNamePayload{Name: &a.Name}
	case engine.SetColor:
		frame.Payload = setColorPayload{Color: &a.Color}
	case engine.ClearScene:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action.Kind())
	}

	switch format {
	case FormatJSON:
		return json.Marshal(frame)
	case FormatMsgpack:
		return msgpack.Marshal(frame)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// DecodeEvent parses one server event. Value is left in its generic decoded
// form.
func DecodeEvent(format Format, data []byte) (Event, error) {
	var ev Event
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &ev)
	case FormatMsgpack:
		err = msgpack.Unmarshal(data, &ev)
	default:
		return ev, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return ev, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return ev, nil
}
