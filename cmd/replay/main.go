// Command replay runs a recorded room script against fresh room state several
// times and reports whether every run ends in the same state. A script lists
// joins, leaves and client frames in arrival order:
//
//	{
//	  "room": "game_room",
//	  "max_players": 10,
//	  "steps": [
//	    {"op": "join", "session": "a"},
//	    {"op": "action", "session": "a", "frame": {"action": "extrude", "payload": {"height": 2}}},
//	    {"op": "leave", "session": "a"}
//	  ]
//	}
//
// Frames use the JSON wire format. Step i is applied at a fixed clock of
// epoch + i milliseconds so lastUpdated values are reproducible.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/mcp-training/shapesync/game/engine"
	"github.com/wricardo/mcp-training/shapesync/protocol"
)

// Step operations
const (
	OpJoin   = "join"
	OpLeave  = "leave"
	OpAction = "action"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Script is a recorded sequence of room inputs.
type Script struct {
	Room       string `json:"room"`
	MaxPlayers int    `json:"max_players"`
	Steps      []Step `json:"steps"`
}

// Step is one room input.
type Step struct {
	Op      string          `json:"op"`
	Session string          `json:"session"`
	Frame   json.RawMessage `json:"frame,omitempty"`
}

// Outcome is what one step did to the room.
type Outcome struct {
	Step     int                      `json:"step"`
	Result   string                   `json:"result"`
	Change   *engine.ChangeDescriptor `json:"change,omitempty"`
	Error    string                   `json:"error,omitempty"`
	Sessions int                      `json:"sessions"`
}

// Report is the result of one replay.
type Report struct {
	Outcomes []Outcome       `json:"outcomes"`
	Final    engine.Snapshot `json:"final"`
}

// Counts tallies outcomes by result.
func (r *Report) Counts() map[string]int {
	counts := make(map[string]int)
	for _, o := range r.Outcomes {
		counts[o.Result]++
	}
	return counts
}

// loadScript reads and checks a script file.
func loadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}

	var script Script
	if err := json.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if script.Room == "" {
		script.Room = engine.DefaultRoomName
	}
	if script.MaxPlayers == 0 {
		script.MaxPlayers = engine.DefaultMaxPlayers
	}
	if err := engine.ValidateRoomConfig(&engine.RoomConfig{Name: script.Room, MaxPlayers: script.MaxPlayers}); err != nil {
		return nil, err
	}

	for i, step := range script.Steps {
		if step.Session == "" {
			return nil, fmt.Errorf("step %d: session is required", i)
		}
		switch step.Op {
		case OpJoin, OpLeave:
		case OpAction:
			if len(step.Frame) == 0 {
				return nil, fmt.Errorf("step %d: action without frame", i)
			}
		default:
			return nil, fmt.Errorf("step %d: unknown op %q", i, step.Op)
		}
	}
	return &script, nil
}

// replay applies every step to a fresh room state.
func replay(script *Script) *Report {
	state := engine.NewRoomState("replay", script.Room, script.MaxPlayers)
	report := &Report{Outcomes: make([]Outcome, 0, len(script.Steps))}

	for i, step := range script.Steps {
		now := epoch.Add(time.Duration(i) * time.Millisecond)
		outcome := Outcome{Step: i}

		switch step.Op {
		case OpJoin:
			if err := state.AddPlayer(step.Session, now); err != nil {
				outcome.Result, outcome.Error = "rejected", err.Error()
			} else {
				outcome.Result = "joined"
			}

		case OpLeave:
			if state.RemovePlayer(step.Session) {
				outcome.Result = "left"
			} else {
				outcome.Result = "noop"
			}

		case OpAction:
			outcome.Result, outcome.Change, outcome.Error = applyFrame(state, step, now)
		}

		outcome.Sessions = state.Len()
		report.Outcomes = append(report.Outcomes, outcome)
	}

	report.Final = state.Snapshot()
	return report
}

func applyFrame(state *engine.RoomState, step Step, now time.Time) (string, *engine.ChangeDescriptor, string) {
	action, err := protocol.Decode(protocol.FormatJSON, step.Frame)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownAction) {
			return "unknown", nil, err.Error()
		}
		return "rejected", nil, err.Error()
	}

	change, err := engine.Dispatch(state, step.Session, action, now)
	switch {
	case err == nil && change == nil:
		return "noop", nil, ""
	case err == nil:
		return "applied", change, ""
	case errors.Is(err, engine.ErrUnknownSession):
		return "dropped", nil, err.Error()
	default:
		return "rejected", nil, err.Error()
	}
}

// run replays script the given number of times and writes a summary to w.
// It returns an error when any run diverges from the first.
func run(script *Script, runs int, printFinal bool, w io.Writer) error {
	if runs < 2 {
		runs = 2
	}

	first := replay(script)
	for i := 1; i < runs; i++ {
		if diff := cmp.Diff(first, replay(script)); diff != "" {
			fmt.Fprintf(w, "❌ run %d diverged from run 1 (-first +run%d):\n%s\n", i+1, i+1, diff)
			return fmt.Errorf("replay is not deterministic")
		}
	}

	counts := first.Counts()
	results := make([]string, 0, len(counts))
	for result := range counts {
		results = append(results, result)
	}
	sort.Strings(results)

	fmt.Fprintf(w, "Room: %s (max %d players)\n", script.Room, script.MaxPlayers)
	fmt.Fprintf(w, "Steps: %d\n", len(script.Steps))
	for _, result := range results {
		fmt.Fprintf(w, "  %-8s %d\n", result, counts[result])
	}
	fmt.Fprintf(w, "Final players: %d\n", len(first.Final))
	fmt.Fprintf(w, "✅ %d runs produced identical state\n", runs)

	if printFinal {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(first.Final)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:      "replay",
		Usage:     "Replay a room script and check that every run ends in the same state",
		ArgsUsage: "<script.json>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "runs",
				Value: 2,
				Usage: "Number of replays to compare",
			},
			&cli.BoolFlag{
				Name:  "print",
				Usage: "Print the final room state as JSON",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected one script file")
			}
			script, err := loadScript(cmd.Args().First())
			if err != nil {
				return err
			}
			return run(script, cmd.Int("runs"), cmd.Bool("print"), os.Stdout)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}
}
