// Command loadgen connects simulated players to a room server and drives them
// through a deterministic sequence of shape actions, then reports what every
// client received.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/wricardo/mcp-training/shapesync/protocol"
)

// Config describes one load run.
type Config struct {
	URL      string
	Room     string
	Format   protocol.Format
	Clients  int
	Actions  int
	Interval time.Duration
	Seed     int64
	Invalid  float64
}

// Summary aggregates the stats of every client.
type Summary struct {
	Clients   int
	Joined    int
	Sent      int
	Events    map[protocol.EventType]int
	Errors    map[string]int
	OutOfSeq  int
	Failures  []string
	Elapsed   time.Duration
	CloseCode map[int]int
}

func newSummary() *Summary {
	return &Summary{
		Events:    make(map[protocol.EventType]int),
		Errors:    make(map[string]int),
		CloseCode: make(map[int]int),
	}
}

func (s *Summary) add(st Stats) {
	if st.OwnID != "" {
		s.Joined++
	}
	s.Sent += st.Sent
	s.OutOfSeq += st.OutOfSeq
	for k, v := range st.Events {
		s.Events[k] += v
	}
	for k, v := range st.Errors {
		s.Errors[k] += v
	}
	if st.CloseCode != 0 {
		s.CloseCode[st.CloseCode]++
	}
}

// runClient plays one simulated player from join to leave.
func runClient(ctx context.Context, cfg Config, index int, log zerolog.Logger) (Stats, error) {
	client, err := Dial(ctx, cfg.URL, cfg.Room, cfg.Format)
	if err != nil {
		return Stats{}, err
	}

	joinCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.WaitJoined(joinCtx); err != nil {
		client.Close(time.Second)
		return client.Stats(), fmt.Errorf("client %d: %w", index, err)
	}
	log.Debug().Int("client", index).Str("session_id", client.Stats().OwnID).Msg("Joined room")

	var limiter *rate.Limiter
	if cfg.Interval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.Interval), 1)
	}

	strategy := NewStrategy(cfg.Seed, index, cfg.Invalid)
	for i := 0; i < cfg.Actions; i++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
		}
		if err := client.Send(strategy.Next()); err != nil {
			client.Close(time.Second)
			return client.Stats(), fmt.Errorf("client %d: send: %w", index, err)
		}
	}

	// Give the room time to broadcast the last actions before leaving
	time.Sleep(100 * time.Millisecond)
	if err := client.Close(2 * time.Second); err != nil {
		log.Debug().Err(err).Int("client", index).Msg("Close handshake failed")
	}
	return client.Stats(), nil
}

// runLoad starts every client concurrently and collects the results.
func runLoad(ctx context.Context, cfg Config, log zerolog.Logger) (*Summary, error) {
	if cfg.Clients < 1 {
		return nil, fmt.Errorf("clients must be at least 1")
	}
	format, err := protocol.ParseFormat(string(cfg.Format))
	if err != nil {
		return nil, err
	}
	cfg.Format = format

	results := make([]Stats, cfg.Clients)
	failures := make([]error, cfg.Clients)
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Clients; i++ {
		i := i
		g.Go(func() error {
			results[i], failures[i] = runClient(ctx, cfg, i, log)
			return nil
		})
	}
	g.Wait()

	summary := newSummary()
	summary.Clients = cfg.Clients
	summary.Elapsed = time.Since(start)
	for i := range results {
		summary.add(results[i])
		if failures[i] != nil {
			summary.Failures = append(summary.Failures, failures[i].Error())
		}
	}
	return summary, nil
}

func printSummary(w io.Writer, cfg Config, s *Summary) {
	fmt.Fprintf(w, "Room: %s  Format: %s\n", cfg.Room, cfg.Format)
	fmt.Fprintf(w, "Clients: %d joined of %d in %s\n", s.Joined, s.Clients, s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Actions sent: %d\n", s.Sent)

	types := make([]string, 0, len(s.Events))
	for t := range s.Events {
		types = append(types, string(t))
	}
	sort.Strings(types)
	fmt.Fprintln(w, "Events received:")
	for _, t := range types {
		fmt.Fprintf(w, "  %-14s %d\n", t, s.Events[protocol.EventType(t)])
	}

	if len(s.Errors) > 0 {
		codes := make([]string, 0, len(s.Errors))
		for c := range s.Errors {
			codes = append(codes, c)
		}
		sort.Strings(codes)
		fmt.Fprintln(w, "Errors:")
		for _, c := range codes {
			fmt.Fprintf(w, "  %-14s %d\n", c, s.Errors[c])
		}
	}

	if s.OutOfSeq > 0 {
		fmt.Fprintf(w, "❌ %d events arrived out of order\n", s.OutOfSeq)
	}
	for _, f := range s.Failures {
		fmt.Fprintf(w, "❌ %s\n", f)
	}
	if s.OutOfSeq == 0 && len(s.Failures) == 0 {
		fmt.Fprintln(w, "✅ all clients saw ordered events")
	}
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger().Level(zerolog.InfoLevel)

	cmd := &cli.Command{
		Name:  "loadgen",
		Usage: "Drive simulated players against a shape room server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:3000", Usage: "Server base URL"},
			&cli.StringFlag{Name: "room", Value: "", Usage: "Room type to join (empty for the default)"},
			&cli.StringFlag{Name: "format", Value: string(protocol.FormatJSON), Usage: "Wire format (json, msgpack)"},
			&cli.IntFlag{Name: "clients", Value: 5, Usage: "Number of simulated players"},
			&cli.IntFlag{Name: "actions", Value: 50, Usage: "Actions sent per player"},
			&cli.DurationFlag{Name: "interval", Value: 50 * time.Millisecond, Usage: "Delay between actions of one player"},
			&cli.IntFlag{Name: "seed", Value: 1, Usage: "Seed for the action sequences"},
			&cli.FloatFlag{Name: "invalid", Value: 0, Usage: "Share of deliberately invalid actions (0 to 1)"},
			&cli.BoolFlag{Name: "v", Usage: "Verbose output"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("v") {
				log = log.Level(zerolog.DebugLevel)
			}
			cfg := Config{
				URL:      cmd.String("url"),
				Room:     cmd.String("room"),
				Format:   protocol.Format(cmd.String("format")),
				Clients:  cmd.Int("clients"),
				Actions:  cmd.Int("actions"),
				Interval: cmd.Duration("interval"),
				Seed:     int64(cmd.Int("seed")),
				Invalid:  cmd.Float("invalid"),
			}

			log.Info().Str("url", cfg.URL).Int("clients", cfg.Clients).Msg("Starting load run")
			summary, err := runLoad(ctx, cfg, log)
			if err != nil {
				return err
			}
			printSummary(os.Stdout, cfg, summary)
			if len(summary.Failures) > 0 || summary.OutOfSeq > 0 {
				return fmt.Errorf("load run finished with problems")
			}
			return nil
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("loadgen failed")
		os.Exit(1)
	}
}
