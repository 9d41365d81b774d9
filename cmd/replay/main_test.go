package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wricardo/mcp-training/shapesync/game/engine"
)

func TestLoadScript(t *testing.T) {
	script, err := loadScript(filepath.Join("testdata", "two_players.json"))
	require.NoError(t, err)
	assert.Equal(t, "studio", script.Room)
	assert.Equal(t, 2, script.MaxPlayers)
	assert.Len(t, script.Steps, 12)
}

func TestLoadScript_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad json", `{`, "failed to parse script"},
		{"missing session", `{"steps": [{"op": "join"}]}`, "step 0: session is required"},
		{"unknown op", `{"steps": [{"op": "kick", "session": "a"}]}`, `step 0: unknown op "kick"`},
		{"action without frame", `{"steps": [{"op": "action", "session": "a"}]}`, "step 0: action without frame"},
		{"bad capacity", `{"max_players": 99, "steps": []}`, "max_players must be between 1 and 64"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "script.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err := loadScript(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScript_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"steps": [{"op": "join", "session": "a"}]}`), 0644))

	script, err := loadScript(path)
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultRoomName, script.Room)
	assert.Equal(t, engine.DefaultMaxPlayers, script.MaxPlayers)
}

func TestReplay(t *testing.T) {
	script, err := loadScript(filepath.Join("testdata", "two_players.json"))
	require.NoError(t, err)

	report := replay(script)

	results := make([]string, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		results = append(results, o.Result)
	}
	want := []string{
		"joined", "joined", "rejected",
		"applied", "applied", "applied", "rejected", "applied",
		"noop", "unknown", "dropped", "left",
	}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, engine.CategoryHeight, report.Outcomes[4].Change.Category)
	assert.Equal(t, 1, report.Outcomes[11].Sessions)

	require.Len(t, report.Final, 1)
	b := report.Final["b"]
	assert.Equal(t, "Ada", b.Name)
	assert.Equal(t, engine.DefaultColor, b.Color)
	assert.Equal(t, 1.0, b.X)
	assert.Equal(t, -2.0, b.Z)
	assert.Equal(t, epoch.Add(7*time.Millisecond).UnixMilli(), b.LastUpdated)
}

func TestReplay_ClampsHeight(t *testing.T) {
	script := &Script{
		Room:       "game_room",
		MaxPlayers: 1,
		Steps: []Step{
			{Op: OpJoin, Session: "a"},
			{Op: OpAction, Session: "a", Frame: []byte(`{"action":"extrude","payload":{"height":25}}`)},
		},
	}

	report := replay(script)
	assert.Equal(t, engine.MaxHeight, report.Final["a"].Height)
}

func TestRun(t *testing.T) {
	script, err := loadScript(filepath.Join("testdata", "two_players.json"))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, run(script, 3, true, &out))

	assert.Contains(t, out.String(), "Room: studio (max 2 players)")
	assert.Contains(t, out.String(), "applied  4")
	assert.Contains(t, out.String(), "3 runs produced identical state")
	assert.Contains(t, out.String(), `"name": "Ada"`)
}

func TestRun_MinimumTwoRuns(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(&Script{Room: "game_room", MaxPlayers: 1}, 0, false, &out))
	assert.Contains(t, out.String(), "2 runs produced identical state")
}
