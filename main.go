// Command shapesync starts the shape room server.
//
// It supports two modes:
//  1. "serve" (default) runs the HTTP server exposing the WebSocket room
//     transport, the monitoring REST API, /metrics and an /mcp HTTP endpoint
//  2. "mcp" runs an MCP stdio server and spins up an internal HTTP API if none
//     is available
//
// Flags control host/port, the room type directory, logging, transport limits,
// and optional ngrok tunneling for easy external access during development.
// Every flag can also be set through the environment or a .env file.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"github.com/wricardo/mcp-training/shapesync/api"
	"github.com/wricardo/mcp-training/shapesync/game/config"
	"github.com/wricardo/mcp-training/shapesync/game/room"
	"github.com/wricardo/mcp-training/shapesync/game/service"
	"github.com/wricardo/mcp-training/shapesync/transport/mcp"
	"github.com/wricardo/mcp-training/shapesync/transport/websocket"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
	"golang.org/x/sync/errgroup"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Shape Room Server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: error loading .env file: %v\n", err)
	}

	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", AppName, err)
		os.Exit(1)
	}
}

// newCommand builds the command tree. Flags are shared by every subcommand.
func newCommand() *cli.Command {
	defaults := websocket.DefaultOptions()

	return &cli.Command{
		Name:    "shapesync",
		Usage:   AppName,
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				Value:   "localhost",
				Usage:   "HTTP server host",
				Sources: cli.EnvVars("HOST"),
			},
			&cli.IntFlag{
				Name:    "port",
				Value:   3000,
				Usage:   "HTTP server port",
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "config-dir",
				Value:   "configs",
				Usage:   "Directory containing room type configurations",
				Sources: cli.EnvVars("CONFIG_DIR"),
			},
			&cli.StringFlag{
				Name:    "default-room",
				Usage:   "Room type joined when a client names none (default: game_room or the first valid config)",
				Sources: cli.EnvVars("DEFAULT_ROOM"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging",
				Sources: cli.EnvVars("DEBUG"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "console",
				Usage:   "Log output format: console or json",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
			&cli.IntFlag{
				Name:    "max-message-size",
				Value:   int(defaults.MaxMessageSize),
				Usage:   "Largest inbound WebSocket frame in bytes",
				Sources: cli.EnvVars("MAX_MESSAGE_SIZE"),
			},
			&cli.DurationFlag{
				Name:    "ping-interval",
				Value:   defaults.PingInterval,
				Usage:   "Interval between WebSocket pings",
				Sources: cli.EnvVars("PING_INTERVAL"),
			},
			&cli.IntFlag{
				Name:    "ping-max-retries",
				Value:   defaults.PingMaxRetries,
				Usage:   "Unanswered pings before a connection is dropped",
				Sources: cli.EnvVars("PING_MAX_RETRIES"),
			},
			&cli.FloatFlag{
				Name:    "rate-limit",
				Value:   defaults.RateLimit,
				Usage:   "Inbound messages per second per connection",
				Sources: cli.EnvVars("RATE_LIMIT"),
			},
			&cli.IntFlag{
				Name:    "rate-burst",
				Value:   defaults.RateBurst,
				Usage:   "Inbound message burst per connection",
				Sources: cli.EnvVars("RATE_BURST"),
			},
			&cli.StringSliceFlag{
				Name:    "allowed-origins",
				Usage:   "Origins allowed to open WebSocket connections (all when empty)",
				Sources: cli.EnvVars("ALLOWED_ORIGINS"),
			},
			&cli.BoolFlag{
				Name:    "ngrok",
				Usage:   "Enable ngrok tunnel",
				Sources: cli.EnvVars("NGROK_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "ngrok-auth",
				Usage:   "Ngrok auth token",
				Sources: cli.EnvVars("NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "ngrok-domain",
				Usage:   "Custom ngrok domain (optional)",
				Sources: cli.EnvVars("NGROK_DOMAIN"),
			},
		},
		Action: runServe,
		Commands: []*cli.Command{
			{
				Name:    "serve",
				Aliases: []string{"server", "http"},
				Usage:   "Run the HTTP server with WebSocket rooms, REST API, metrics and MCP endpoint",
				Action:  runServe,
			},
			{
				Name:    "mcp",
				Aliases: []string{"stdio-mcp", "mcp-stdio"},
				Usage:   "Run an MCP stdio server, with an internal HTTP server if none is running",
				Action:  runStdioMCP,
			},
		},
	}
}

// newLogger builds the process logger. Console output is for development,
// json for log shippers.
func newLogger(w io.Writer, debug bool, format string) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	if format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// hubOptions maps flags onto the transport settings.
func hubOptions(cmd *cli.Command, log zerolog.Logger) (websocket.Options, error) {
	opts := websocket.DefaultOptions()
	opts.MaxMessageSize = int64(cmd.Int("max-message-size"))
	opts.PingInterval = cmd.Duration("ping-interval")
	opts.PingMaxRetries = cmd.Int("ping-max-retries")
	opts.RateLimit = cmd.Float("rate-limit")
	opts.RateBurst = cmd.Int("rate-burst")
	opts.AllowedOrigins = cmd.StringSlice("allowed-origins")
	opts.Logger = log.With().Str("component", "websocket").Logger()
	if err := opts.Validate(); err != nil {
		return opts, fmt.Errorf("invalid transport settings: %w", err)
	}
	return opts, nil
}

// services holds the wired components of one server process.
type services struct {
	configs  *config.Manager
	rooms    *room.Manager
	hub      *websocket.Hub
	registry *prometheus.Registry
	api      *api.Server
}

// initializeServices wires the config manager, room manager, transport hub
// and API server. An empty config directory gets the built-in room type
// written to it; defaultRoom, when set, overrides the default room type.
func initializeServices(configDir, defaultRoom string, opts websocket.Options, log zerolog.Logger) (*services, error) {
	configManager, err := config.NewManager(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	if infos, err := configManager.ListConfigs(); err == nil && len(infos) == 1 && infos[0].Filename == "" {
		if err := configManager.SaveConfig(configManager.GetDefault()); err != nil {
			log.Warn().Err(err).Str("dir", configDir).Msg("failed to write default room type")
		} else {
			log.Info().Str("dir", configDir).Str("room", configManager.GetDefault().Name).Msg("wrote default room type")
		}
	}
	if defaultRoom != "" {
		if err := configManager.SetDefault(defaultRoom); err != nil {
			return nil, fmt.Errorf("default room %q: %w", defaultRoom, err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rooms := room.NewManager(configManager,
		room.WithLogger(log.With().Str("component", "room").Logger()),
		room.WithMetrics(room.NewMetrics(registry)),
	)
	hub := websocket.NewHub(rooms, opts)
	roomService := service.NewRoomService(rooms, configManager)

	return &services{
		configs:  configManager,
		rooms:    rooms,
		hub:      hub,
		registry: registry,
		api:      api.NewServer(roomService, hub, registry, log.With().Str("component", "api").Logger()),
	}, nil
}

// mcpHTTPHandler answers single MCP JSON-RPC messages over POST.
func mcpHTTPHandler(client *mcp.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		response := client.GetMCPServer().HandleMessage(r.Context(), body)

		w.Header().Set("Content-Type", "application/json")
		responseData, err := json.Marshal(response)
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Write(responseData)
	}
}

// runServe starts the HTTP server and the hub, and optionally an ngrok tunnel.
// It returns once a signal arrives and every room has been closed.
func runServe(ctx context.Context, cmd *cli.Command) error {
	log := newLogger(os.Stderr, cmd.Bool("debug"), cmd.String("log-format"))

	opts, err := hubOptions(cmd, log)
	if err != nil {
		return err
	}
	svc, err := initializeServices(cmd.String("config-dir"), cmd.String("default-room"), opts, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(cmd.String("host"), strconv.Itoa(cmd.Int("port")))

	mainRouter := http.NewServeMux()
	mainRouter.Handle("/", svc.api)
	mainRouter.HandleFunc("/mcp", mcpHTTPHandler(mcp.NewClient("http://"+addr)))

	// No write timeout: WebSocket connections are long lived and set their own deadlines
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mainRouter,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		svc.hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		reloadOnHangup(gctx, log, svc.configs, cmd.String("default-room"))
		return nil
	})

	g.Go(func() error {
		log.Info().
			Str("addr", addr).
			Str("websocket", fmt.Sprintf("ws://%s/ws?room=<room type>", addr)).
			Str("api", fmt.Sprintf("http://%s/api", addr)).
			Str("metrics", fmt.Sprintf("http://%s/metrics", addr)).
			Str("mcp", fmt.Sprintf("http://%s/mcp", addr)).
			Str("version", Version).
			Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	if cmd.Bool("ngrok") {
		g.Go(func() error {
			serveNgrok(gctx, log, cmd.String("ngrok-auth"), cmd.String("ngrok-domain"), mainRouter)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := svc.rooms.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("rooms did not close in time")
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info().Msg("server stopped")
	return err
}

// reloadConfigs drops cached room types and reapplies the default room.
// Live rooms keep the settings they were created with.
func reloadConfigs(configs *config.Manager, defaultRoom string) error {
	if err := configs.RefreshCache(); err != nil {
		return err
	}
	if defaultRoom != "" {
		return configs.SetDefault(defaultRoom)
	}
	return nil
}

// reloadOnHangup reloads the room types on every SIGHUP until ctx ends.
func reloadOnHangup(ctx context.Context, log zerolog.Logger, configs *config.Manager, defaultRoom string) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := reloadConfigs(configs, defaultRoom); err != nil {
				log.Error().Err(err).Msg("failed to reload room types")
				continue
			}
			log.Info().Str("default_room", configs.GetDefault().Name).Msg("room types reloaded")
		}
	}
}

// serveNgrok serves handler through an ngrok tunnel until ctx ends. Tunnel
// failures are logged; the local server keeps running.
func serveNgrok(ctx context.Context, log zerolog.Logger, authToken, domain string, handler http.Handler) {
	if authToken == "" {
		log.Warn().Msg("ngrok enabled but no auth token provided (use --ngrok-auth or NGROK_AUTHTOKEN)")
		return
	}

	var tunnel ngrokConfig.Tunnel
	if domain != "" {
		tunnel = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
	} else {
		tunnel = ngrokConfig.HTTPEndpoint()
	}

	tun, err := ngrok.Listen(ctx, tunnel, ngrok.WithAuthtoken(authToken))
	if err != nil {
		log.Error().Err(err).Msg("failed to start ngrok tunnel")
		return
	}

	go func() {
		<-ctx.Done()
		if err := tun.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close ngrok tunnel")
		}
	}()

	log.Info().Str("url", tun.URL()).Msg("ngrok tunnel established")
	if err := http.Serve(tun, handler); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("ngrok server error")
	}
	log.Info().Msg("ngrok tunnel closed")
}

// runStdioMCP runs an MCP stdio server. It reuses an API already listening on
// host:port; otherwise it starts an internal HTTP API on a random loopback port.
// Logs go to stderr since stdout carries the protocol.
func runStdioMCP(ctx context.Context, cmd *cli.Command) error {
	log := newLogger(os.Stderr, cmd.Bool("debug"), cmd.String("log-format"))

	externalURL := "http://" + net.JoinHostPort(cmd.String("host"), strconv.Itoa(cmd.Int("port")))
	baseURL, err := resolveAPI(ctx, log, externalURL, func() (string, error) {
		opts, err := hubOptions(cmd, log)
		if err != nil {
			return "", err
		}
		svc, err := initializeServices(cmd.String("config-dir"), cmd.String("default-room"), opts, log)
		if err != nil {
			return "", err
		}
		go svc.hub.Run(ctx)
		return startInternalServer(log, svc.api)
	})
	if err != nil {
		return err
	}

	mcpClient := mcp.NewClient(baseURL)
	log.Info().Str("api", baseURL).Msg("MCP stdio server ready")

	if err := server.ServeStdio(mcpClient.GetMCPServer()); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

// resolveAPI returns externalURL when it answers a health check, otherwise the
// address of the server started by startInternal.
func resolveAPI(ctx context.Context, log zerolog.Logger, externalURL string, startInternal func() (string, error)) (string, error) {
	log.Debug().Str("url", externalURL).Msg("checking for external API server")

	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, "GET", externalURL+"/api/health", nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode < 500 {
			log.Info().Str("url", externalURL).Msg("using external API server")
			return externalURL, nil
		}
	}

	log.Info().Msg("no external API server found, starting internal HTTP server")
	return startInternal()
}

// startInternalServer serves handler on a random loopback port.
func startInternalServer(log zerolog.Logger, handler http.Handler) (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("failed to get available port: %w", err)
	}

	httpServer := &http.Server{Handler: handler, ReadHeaderTimeout: 15 * time.Second}
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("internal HTTP server error")
		}
	}()

	return "http://" + listener.Addr().String(), nil
}
