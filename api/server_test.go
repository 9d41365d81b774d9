package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/wricardo/mcp-training/shapesync/game/config"
	"github.com/wricardo/mcp-training/shapesync/game/engine"
	"github.com/wricardo/mcp-training/shapesync/game/room"
	"github.com/wricardo/mcp-training/shapesync/game/service"
	"github.com/wricardo/mcp-training/shapesync/game/session"
)

// MockRoomService implements service.RoomService for testing
type MockRoomService struct {
	ListRoomsFunc    func(ctx context.Context) ([]room.Info, error)
	GetRoomFunc      func(ctx context.Context, name string) (*room.Detail, error)
	ListSessionsFunc func(ctx context.Context, opts service.SessionFilter) ([]session.Info, error)
	GetSessionFunc   func(ctx context.Context, id string) (*session.Info, error)
	ListConfigsFunc  func(ctx context.Context) ([]*config.ConfigInfo, error)
	GetConfigFunc    func(ctx context.Context, name string) (*engine.RoomConfig, error)
	StatsFunc        func(ctx context.Context) (*service.Stats, error)
}

func (m *MockRoomService) ListRooms(ctx context.Context) ([]room.Info, error) {
	if m.ListRoomsFunc != nil {
		return m.ListRoomsFunc(ctx)
	}
	return []room.Info{}, nil
}

func (m *MockRoomService) GetRoom(ctx context.Context, name string) (*room.Detail, error) {
	if m.GetRoomFunc != nil {
		return m.GetRoomFunc(ctx, name)
	}
	return nil, fmt.Errorf("room %q: %w", name, service.ErrNotFound)
}

func (m *MockRoomService) ListSessions(ctx context.Context, opts service.SessionFilter) ([]session.Info, error) {
	if m.ListSessionsFunc != nil {
		return m.ListSessionsFunc(ctx, opts)
	}
	return []session.Info{}, nil
}

func (m *MockRoomService) GetSession(ctx context.Context, id string) (*session.Info, error) {
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx, id)
	}
	return nil, fmt.Errorf("session %q: %w", id, service.ErrNotFound)
}

func (m *MockRoomService) ListConfigs(ctx context.Context) ([]*config.ConfigInfo, error) {
	if m.ListConfigsFunc != nil {
		return m.ListConfigsFunc(ctx)
	}
	return []*config.ConfigInfo{}, nil
}

func (m *MockRoomService) GetConfig(ctx context.Context, name string) (*engine.RoomConfig, error) {
	if m.GetConfigFunc != nil {
		return m.GetConfigFunc(ctx, name)
	}
	return &engine.RoomConfig{Name: name, MaxPlayers: 4}, nil
}

func (m *MockRoomService) Stats(ctx context.Context) (*service.Stats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx)
	}
	return &service.Stats{DefaultRoom: engine.DefaultRoomName}, nil
}

// fakeHub records upgrade requests instead of upgrading
type fakeHub struct {
	rooms []string
	count int
}

func (h *fakeHub) ServeWS(w http.ResponseWriter, r *http.Request, roomName string) {
	h.rooms = append(h.rooms, roomName)
	w.WriteHeader(http.StatusSwitchingProtocols)
}

func (h *fakeHub) Count() int { return h.count }

// Test helpers
func setupTestServer(mockService *MockRoomService) (*Server, *fakeHub) {
	hub := &fakeHub{}
	return NewServer(mockService, hub, nil, zerolog.Nop()), hub
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder, target interface{}) {
	if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	mockService := &MockRoomService{
		StatsFunc: func(ctx context.Context) (*service.Stats, error) {
			return &service.Stats{Rooms: 2, Sessions: 5, DefaultRoom: "game_room"}, nil
		},
	}
	server, hub := setupTestServer(mockService)
	hub.count = 5

	w := doRequest(server, "GET", "/api/health")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp struct {
		Status      string        `json:"status"`
		Stats       service.Stats `json:"stats"`
		Connections int           `json:"connections"`
	}
	parseResponse(t, w, &resp)
	if resp.Status != "healthy" {
		t.Errorf("Expected healthy, got %s", resp.Status)
	}
	if resp.Stats.Rooms != 2 || resp.Stats.Sessions != 5 {
		t.Errorf("Unexpected stats: %+v", resp.Stats)
	}
	if resp.Connections != 5 {
		t.Errorf("Expected 5 connections, got %d", resp.Connections)
	}
}

func TestListRooms(t *testing.T) {
	mockService := &MockRoomService{
		ListRoomsFunc: func(ctx context.Context) ([]room.Info, error) {
			return []room.Info{
				{ID: "r1", Name: "game_room", Players: 3, Capacity: 10},
				{ID: "r2", Name: "studio", Players: 1, Capacity: 2},
			}, nil
		},
	}
	server, _ := setupTestServer(mockService)

	w := doRequest(server, "GET", "/api/rooms")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp struct {
		Count int         `json:"count"`
		Rooms []room.Info `json:"rooms"`
	}
	parseResponse(t, w, &resp)
	if resp.Count != 2 || len(resp.Rooms) != 2 {
		t.Fatalf("Expected 2 rooms, got %+v", resp)
	}
	if resp.Rooms[0].Name != "game_room" || resp.Rooms[0].Players != 3 {
		t.Errorf("Unexpected first room: %+v", resp.Rooms[0])
	}
}

func TestGetRoom(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		expectedStatus int
	}{
		{"Existing room", "/api/rooms/game_room", http.StatusOK},
		{"Missing room", "/api/rooms/nowhere", http.StatusNotFound},
	}

	mockService := &MockRoomService{
		GetRoomFunc: func(ctx context.Context, name string) (*room.Detail, error) {
			if name != "game_room" {
				return nil, fmt.Errorf("room %q: %w", name, service.ErrNotFound)
			}
			return &room.Detail{
				Info: room.Info{ID: "r1", Name: name, Players: 1, Capacity: 10},
				Players: engine.Snapshot{
					"s1": {Name: "Player 1", Color: "#ffffff", Height: 1},
				},
			}, nil
		},
	}
	server, _ := setupTestServer(mockService)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(server, "GET", tt.path)
			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}

			var resp struct {
				Name    string          `json:"name"`
				Count   int             `json:"player_count"`
				Players engine.Snapshot `json:"players"`
			}
			parseResponse(t, w, &resp)
			if resp.Name != "game_room" || resp.Count != 1 {
				t.Errorf("Unexpected room: %+v", resp)
			}
			if resp.Players["s1"].Name != "Player 1" {
				t.Errorf("Expected player s1, got %+v", resp.Players)
			}
		})
	}
}

func TestListSessions(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		expectedStatus int
		expectedFilter service.SessionFilter
	}{
		{"No filter", "", http.StatusOK, service.SessionFilter{}},
		{"Room filter", "?room=studio", http.StatusOK, service.SessionFilter{Room: "studio"}},
		{"Limit", "?limit=2", http.StatusOK, service.SessionFilter{Limit: 2}},
		{"Invalid limit", "?limit=abc", http.StatusBadRequest, service.SessionFilter{}},
		{"Negative limit", "?limit=-1", http.StatusBadRequest, service.SessionFilter{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *service.SessionFilter
			mockService := &MockRoomService{
				ListSessionsFunc: func(ctx context.Context, opts service.SessionFilter) ([]session.Info, error) {
					got = &opts
					return []session.Info{{ID: "s1", Room: "studio", State: "joined", JoinedAt: time.Now()}}, nil
				},
			}
			server, _ := setupTestServer(mockService)

			w := doRequest(server, "GET", "/api/sessions"+tt.query)
			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.expectedStatus != http.StatusOK {
				if got != nil {
					t.Errorf("Service should not be called on bad request")
				}
				return
			}
			if got == nil || *got != tt.expectedFilter {
				t.Errorf("Expected filter %+v, got %+v", tt.expectedFilter, got)
			}

			var resp struct {
				Count    int            `json:"count"`
				Sessions []session.Info `json:"sessions"`
			}
			parseResponse(t, w, &resp)
			if resp.Count != 1 || resp.Sessions[0].ID != "s1" {
				t.Errorf("Unexpected sessions: %+v", resp)
			}
		})
	}
}

func TestGetSession(t *testing.T) {
	mockService := &MockRoomService{
		GetSessionFunc: func(ctx context.Context, id string) (*session.Info, error) {
			switch id {
			case "s1":
				return &session.Info{ID: id, Room: "game_room", RoomID: "r1", State: "joined"}, nil
			case "broken":
				return nil, fmt.Errorf("registry unavailable")
			}
			return nil, fmt.Errorf("session %q: %w", id, service.ErrNotFound)
		},
	}
	server, _ := setupTestServer(mockService)

	w := doRequest(server, "GET", "/api/sessions/s1")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var info session.Info
	parseResponse(t, w, &info)
	if info.RoomID != "r1" {
		t.Errorf("Expected room id r1, got %s", info.RoomID)
	}

	if w := doRequest(server, "GET", "/api/sessions/missing"); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	if w := doRequest(server, "GET", "/api/sessions/broken"); w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestConfigs(t *testing.T) {
	mockService := &MockRoomService{
		ListConfigsFunc: func(ctx context.Context) ([]*config.ConfigInfo, error) {
			return []*config.ConfigInfo{
				{ConfigID: "game_room", Name: "game_room", MaxPlayers: 10, Default: true},
			}, nil
		},
		GetConfigFunc: func(ctx context.Context, name string) (*engine.RoomConfig, error) {
			if name != "studio" {
				return nil, fmt.Errorf("config %q: %w", name, service.ErrNotFound)
			}
			return &engine.RoomConfig{Name: name, MaxPlayers: 2}, nil
		},
	}
	server, _ := setupTestServer(mockService)

	t.Run("list", func(t *testing.T) {
		w := doRequest(server, "GET", "/api/configs")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		var configs []config.ConfigInfo
		parseResponse(t, w, &configs)
		if len(configs) != 1 || !configs[0].Default {
			t.Errorf("Unexpected configs: %+v", configs)
		}
	})

	t.Run("get with extension", func(t *testing.T) {
		w := doRequest(server, "GET", "/api/configs/studio.json")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", w.Code)
		}
		var cfg engine.RoomConfig
		parseResponse(t, w, &cfg)
		if cfg.MaxPlayers != 2 {
			t.Errorf("Expected max players 2, got %d", cfg.MaxPlayers)
		}
	})

	t.Run("missing", func(t *testing.T) {
		if w := doRequest(server, "GET", "/api/configs/nope"); w.Code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %d", w.Code)
		}
	})
}

func TestWebSocketRoute(t *testing.T) {
	server, hub := setupTestServer(&MockRoomService{})

	doRequest(server, "GET", "/ws?room=studio")
	doRequest(server, "GET", "/ws")

	if len(hub.rooms) != 2 || hub.rooms[0] != "studio" || hub.rooms[1] != "" {
		t.Errorf("Unexpected upgrade rooms: %q", hub.rooms)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	room.NewMetrics(reg).RoomsActive.Set(3)

	server := NewServer(&MockRoomService{}, &fakeHub{}, reg, zerolog.Nop())
	w := doRequest(server, "GET", "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "shapesync_rooms_active 3") {
		t.Errorf("Expected rooms gauge in output, got:\n%s", w.Body.String())
	}

	// Without a gatherer the route is not registered
	plain, _ := setupTestServer(&MockRoomService{})
	if w := doRequest(plain, "GET", "/metrics"); w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}
