package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/mcp-training/shapesync/game/config"
	"github.com/wricardo/mcp-training/shapesync/game/engine"
	"github.com/wricardo/mcp-training/shapesync/game/room"
	"github.com/wricardo/mcp-training/shapesync/game/service"
	"github.com/wricardo/mcp-training/shapesync/game/session"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Shape Room Monitor",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Shape Room Monitor - MCP Interface

This is a read-only client that proxies all requests to the REST API server.
Players draw a 2D outline, extrude it, move it, and pick a name and color;
the server keeps one authoritative record per player in each room.

AVAILABLE TOOLS:
- server_health: Server status, room and session counts
- list_rooms: List live rooms
- get_room: Every player's state in a room
- list_sessions: List connected sessions, optionally for one room type
- get_session: Details of one session
- list_configs: List room types players can join
- protocol_instructions: How clients talk to a room

NOTE: Room state can only change through a WebSocket session; these tools never mutate it.`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "server_health",
		Description: "Get server status with room, session and connection counts",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleServerHealth)

	// Rooms
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_rooms",
		Description: "List all live rooms",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListRooms)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_room",
		Description: "Get a room's summary and every player's current state",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"room_name": map[string]interface{}{
					"type":        "string",
					"description": "Room type name, e.g. game_room",
				},
			},
			Required: []string{"room_name"},
		},
	}, c.handleGetRoom)

	// Sessions
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List connected sessions ordered by join time",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"room_name": map[string]interface{}{
					"type":        "string",
					"description": "Only sessions in this room type (optional)",
				},
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of sessions to return (optional)",
				},
			},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session ID to retrieve",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleGetSession)

	// Configuration
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_configs",
		Description: "List available room types",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListConfigs)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "protocol_instructions",
		Description: "Describe the client messages and server events of a room",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleProtocolInstructions)
}

// GetMCPServer returns the underlying MCP server
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// apiCall makes an HTTP call to the REST API
func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func stringArg(request mcp.CallToolRequest, key string) string {
	args, _ := request.Params.Arguments.(map[string]interface{})
	v, _ := args[key].(string)
	return v
}

// Tool handlers

func (c *Client) handleServerHealth(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Status      string        `json:"status"`
		Stats       service.Stats `json:"stats"`
		Connections int           `json:"connections"`
	}

	if err := c.apiCall(ctx, "GET", "/api/health", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Status: %s\nRooms: %d\nSessions: %d\nConnections: %d\nDefault room: %s\nUptime: %s\n",
		response.Status, response.Stats.Rooms, response.Stats.Sessions, response.Connections,
		response.Stats.DefaultRoom, response.Stats.Uptime.Round(time.Second))

	names := make([]string, 0, len(response.Stats.RoomSessions))
	for name := range response.Stats.RoomSessions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		result += fmt.Sprintf("  %s: %d sessions\n", name, response.Stats.RoomSessions[name])
	}
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListRooms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count int         `json:"count"`
		Rooms []room.Info `json:"rooms"`
	}

	if err := c.apiCall(ctx, "GET", "/api/rooms", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Live Rooms (%d):\n\n", response.Count)
	for _, r := range response.Rooms {
		result += formatRoomInfo(r) + "\n"
	}
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGetRoom(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := stringArg(request, "room_name")
	if name == "" {
		return mcp.NewToolResultError("room_name is required"), nil
	}

	var detail room.Detail
	if err := c.apiCall(ctx, "GET", "/api/rooms/"+url.PathEscape(name), nil, &detail); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRoomDetail(&detail)), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := url.Values{}
	if name := stringArg(request, "room_name"); name != "" {
		query.Set("room", name)
	}
	args, _ := request.Params.Arguments.(map[string]interface{})
	if limit, ok := args["limit"].(float64); ok && limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", int(limit)))
	}

	path := "/api/sessions"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var response struct {
		Count    int            `json:"count"`
		Sessions []session.Info `json:"sessions"`
	}
	if err := c.apiCall(ctx, "GET", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Active Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		result += fmt.Sprintf("- %s (Room: %s, State: %s, Joined: %s)\n",
			s.ID, s.Room, s.State, s.JoinedAt.Format("15:04:05"))
	}
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := stringArg(request, "session_id")
	if id == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	var info session.Info
	if err := c.apiCall(ctx, "GET", "/api/sessions/"+url.PathEscape(id), nil, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&info)), nil
}

func (c *Client) handleListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var configs []config.ConfigInfo
	if err := c.apiCall(ctx, "GET", "/api/configs", nil, &configs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := "Room Types:\n\n"
	for _, cfg := range configs {
		marker := ""
		if cfg.Default {
			marker = " [default]"
		}
		result += fmt.Sprintf("- %s%s: %s (max %d players)\n", cfg.Name, marker, cfg.Description, cfg.MaxPlayers)
	}
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleProtocolInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instructions := fmt.Sprintf(`Shape Room Protocol

CONNECTING:
- Open a WebSocket to /ws?room=<room type>&format=json|msgpack
- Without room, the default room type is joined
- JSON uses text frames, msgpack uses binary frames

CLIENT MESSAGES ({"action": <name>, "payload": {...}}):
- %s: {"points": [x0, z0, x1, z1, ...]} %d to %d values, even length
- %s: {"height": h} clamped to [%g, %g]
- %s: {"x": x, "y": y, "z": z} each within +/-%g
- %s: {"name": "..."} trimmed, up to %d of A-Z a-z 0-9 space _ -
- %s: {"color": "#rrggbb"}
- %s: accepted and ignored

SERVER EVENTS:
- snapshot: every player's state, sent once after joining
- playerJoined / playerLeft: membership changes
- playerUpdated: {"id", "category", "value"} after a successful change
- error: {"code", "message"} sent only to the client that caused it

CLOSE CODES:
- 4001 room full
- 4002 room unavailable
- 4004 unknown room type
`,
		engine.ActionDraw, engine.MinShapeValues, engine.MaxShapeValues,
		engine.ActionExtrude, engine.MinHeight, engine.MaxHeight,
		engine.ActionMove, engine.MaxCoordinate,
		engine.ActionSetName, engine.MaxNameLength,
		engine.ActionSetColor, engine.ActionClearScene)

	return mcp.NewToolResultText(instructions), nil
}

// Formatting helpers

func formatRoomInfo(r room.Info) string {
	return fmt.Sprintf("- %s (%s) %d/%d players, %s, seq %d",
		r.Name, r.ID, r.Players, r.Capacity, r.Lifecycle, r.Seq)
}

func formatRoomDetail(d *room.Detail) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Room %s (%s)\n", d.Name, d.ID))
	b.WriteString(fmt.Sprintf("Players: %d/%d\n", d.Info.Players, d.Capacity))
	b.WriteString(fmt.Sprintf("Lifecycle: %s\n", d.Lifecycle))
	b.WriteString(fmt.Sprintf("Seq: %d\n", d.Seq))

	if len(d.Players) == 0 {
		b.WriteString("\nNo players.\n")
		return b.String()
	}

	ids := make([]string, 0, len(d.Players))
	for id := range d.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	b.WriteString("\n")
	for _, id := range ids {
		p := d.Players[id]
		b.WriteString(fmt.Sprintf("- %s %q color=%s pos=(%g,%g,%g) height=%g points=%d\n",
			id, p.Name, p.Color, p.X, p.Y, p.Z, p.Height, len(p.Shape)/2))
	}
	return b.String()
}

func formatSessionInfo(s *session.Info) string {
	return fmt.Sprintf("Session: %s\nRoom: %s\nRoom ID: %s\nState: %s\nJoined: %s\n",
		s.ID, s.Room, s.RoomID, s.State, s.JoinedAt.Format(time.RFC3339))
}
