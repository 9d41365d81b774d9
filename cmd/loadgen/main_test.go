package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wricardo/mcp-training/shapesync/game/config"
	"github.com/wricardo/mcp-training/shapesync/game/engine"
	"github.com/wricardo/mcp-training/shapesync/game/room"
	"github.com/wricardo/mcp-training/shapesync/protocol"
	"github.com/wricardo/mcp-training/shapesync/transport/websocket"
)

func TestStrategy_ActionsAreValid(t *testing.T) {
	state := engine.NewRoomState("r", "game_room", 1)
	require.NoError(t, state.AddPlayer("a", time.Now()))

	strategy := NewStrategy(42, 3, 0)
	for i := 0; i < 500; i++ {
		action := strategy.Next()
		if _, err := engine.Dispatch(state, "a", action, time.Now()); err != nil {
			t.Fatalf("action %d (%s) rejected: %v", i, action.Kind(), err)
		}
	}

	player := state.Snapshot()["a"]
	assert.Equal(t, "Bot 3", player.Name)
	assert.NotEqual(t, engine.DefaultColor, player.Color)
	assert.GreaterOrEqual(t, len(player.Shape), engine.MinShapeValues)
}

func TestStrategy_Deterministic(t *testing.T) {
	a := NewStrategy(7, 1, 0.2)
	b := NewStrategy(7, 1, 0.2)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}

	assert.NotEqual(t, NewStrategy(7, 1, 0).Next(), NewStrategy(7, 2, 0).Next())
}

func TestStrategy_InvalidActionsAreRejected(t *testing.T) {
	state := engine.NewRoomState("r", "game_room", 1)
	require.NoError(t, state.AddPlayer("a", time.Now()))

	s := NewStrategy(1, 0, 1)
	for i := 0; i < 20; i++ {
		_, err := engine.Dispatch(state, "a", s.invalidAction(), time.Now())
		assert.Error(t, err)
	}
}

func TestWSURL(t *testing.T) {
	tests := []struct {
		base    string
		room    string
		want    string
		wantErr bool
	}{
		{"http://localhost:3000", "", "ws://localhost:3000/ws?format=json", false},
		{"https://example.com/", "lobby", "wss://example.com/ws?format=json&room=lobby", false},
		{"ws://127.0.0.1:9", "a b", "ws://127.0.0.1:9/ws?format=json&room=a+b", false},
		{"ftp://example.com", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := wsURL(tt.base, tt.room, protocol.FormatJSON)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	configs, err := config.NewManager(t.TempDir())
	require.NoError(t, err)

	manager := room.NewManager(configs)
	hub := websocket.NewHub(manager, websocket.DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("room"))
	}))
	t.Cleanup(func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		manager.Shutdown(shutdownCtx)
		srv.Close()
	})
	return srv
}

func TestRunLoad(t *testing.T) {
	for _, format := range []protocol.Format{protocol.FormatJSON, protocol.FormatMsgpack} {
		t.Run(string(format), func(t *testing.T) {
			srv := newServer(t)

			cfg := Config{
				URL:      srv.URL,
				Format:   format,
				Clients:  3,
				Actions:  10,
				Interval: time.Millisecond,
				Seed:     1,
			}
			summary, err := runLoad(context.Background(), cfg, zerolog.Nop())
			require.NoError(t, err)

			assert.Empty(t, summary.Failures)
			assert.Equal(t, 3, summary.Joined)
			assert.Equal(t, 30, summary.Sent)
			assert.Equal(t, 3, summary.Events[protocol.EventSnapshot])
			assert.Zero(t, summary.OutOfSeq)
			assert.Empty(t, summary.Errors)
			assert.Greater(t, summary.Events[protocol.EventPlayerUpdated], 0)

			var out bytes.Buffer
			printSummary(&out, cfg, summary)
			assert.Contains(t, out.String(), "Clients: 3 joined of 3")
			assert.Contains(t, out.String(), "✅ all clients saw ordered events")
		})
	}
}

func TestRunLoad_InvalidActionsReportErrors(t *testing.T) {
	srv := newServer(t)

	cfg := Config{URL: srv.URL, Clients: 1, Actions: 30, Seed: 3, Invalid: 1}
	summary, err := runLoad(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	assert.Empty(t, summary.Failures)
	assert.Equal(t, 27, summary.Errors[protocol.CodeValidation])
}

func TestRunLoad_BadConfig(t *testing.T) {
	_, err := runLoad(context.Background(), Config{Clients: 0}, zerolog.Nop())
	assert.Error(t, err)

	_, err = runLoad(context.Background(), Config{Clients: 1, Format: "xml"}, zerolog.Nop())
	assert.ErrorIs(t, err, protocol.ErrUnknownFormat)
}

func TestRunLoad_UnknownRoom(t *testing.T) {
	srv := newServer(t)

	summary, err := runLoad(context.Background(), Config{URL: srv.URL, Room: "missing", Clients: 1}, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, 1, summary.CloseCode[websocket.CloseUnknownRoom])
}
