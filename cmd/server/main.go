/*
main.go - Application entry point

PURPOSE:
  Starts the scheduled payments engine: HTTP API, time driver and the
  notification sink, or runs one-off schedule estimates from the shell.

COMMANDS:
  serve      Run the server (default when no command is given)
  estimate   Print the next occurrences of a schedule and exit

STARTUP SEQUENCE (serve):
  1. Load config (file, then flag overrides)
  2. Apply the clock section to the clock source
  3. Open the SQLite store and the configured wallets (catch-up reconcile)
  4. Start the notification sink and the time driver
  5. Watch the config file for clock changes
  6. Start the HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  --config     YAML or JSON config file (optional)
  --addr       HTTP listen address (overrides server.addr)
  --db         SQLite database path (overrides storage.path)
               Use ":memory:" for in-memory database
  --log-level  debug, info, warn or error (overrides log.level)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the driver
  4. Close database connection

EXAMPLES:
  ./server serve --config=./payments.yaml
  ./server serve --db=":memory:" --log-level=debug
  ./server estimate --when="MONTHDAY-31 TIME-08:00" --count=6

SEE ALSO:
  - config/config.go: Config file format
  - api/server.go: Router configuration
  - scheduler/driver.go: Time driver
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli"
	"github.com/warp/scheduled-payments/api"
	"github.com/warp/scheduled-payments/clock"
	"github.com/warp/scheduled-payments/config"
	"github.com/warp/scheduled-payments/logging"
	"github.com/warp/scheduled-payments/notify"
	"github.com/warp/scheduled-payments/payments"
	"github.com/warp/scheduled-payments/scheduler"
	"github.com/warp/scheduled-payments/store/sqlite"
)

const shutdownTimeout = 30 * time.Second

var serveFlags = []cli.Flag{
	cli.StringFlag{
		Name:   "config, c",
		Usage:  "config file (`FILE`, .yaml or .json)",
		EnvVar: "PAYMENTS_CONFIG",
	},
	cli.StringFlag{
		Name:  "addr",
		Usage: "HTTP listen `ADDRESS`",
	},
	cli.StringFlag{
		Name:  "db",
		Usage: "SQLite database `PATH` (\":memory:\" for a throwaway database)",
	},
	cli.StringFlag{
		Name:  "log-level",
		Usage: "log `LEVEL` (debug, info, warn, error)",
	},
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "scheduled-payments",
		HelpName:  "server",
		Usage:     "recurring payment scheduler with a controllable clock",
		UsageText: "server [command] [arguments...]",
		Commands: []cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the time driver",
				Action: serve,
				Flags:  serveFlags,
			},
			{
				Name:      "estimate",
				Aliases:   []string{"e"},
				Usage:     "print the next occurrences of a schedule",
				UsageText: `server estimate --when="WEEKDAY-1 TIME-09:00" [--from=RFC3339] [--count=N]`,
				Action:    estimate,
				Flags:     estimateFlags,
			},
		},
		Action: serve,
		Flags:  serveFlags,
	}
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if v := c.String("addr"); v != "" {
		cfg.Server.Addr = v
	}
	if v := c.String("db"); v != "" {
		cfg.Storage.Path = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Clock
	src := clock.NewSource(nil)
	if err := cfg.Clock.Apply(src); err != nil {
		return fmt.Errorf("clock config: %w", err)
	}

	// Store
	if cfg.Storage.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}
	store, err := sqlite.New(cfg.Storage.Path, sqlite.WithLocation(src.Location()))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	// Notifications
	bus := notify.New()
	go notify.NewLogSink(logging.Component(log, "notify"), 6).Run(ctx, bus)

	// Payments
	registry := payments.NewRegistry(store, src, payments.Options{
		Location: src.Location(),
		Logger:   logging.Component(log, "payments"),
	})
	registry.OnDue = notify.PublishDue(bus)
	for _, wallet := range cfg.Wallets {
		if _, _, err := registry.Open(ctx, wallet); err != nil {
			log.Warn().Err(err).Str("wallet", wallet).Msg("failed to open wallet")
		}
	}

	// Driver
	driver := scheduler.NewDriver(src, registry, bus, logging.Component(log, "scheduler"))
	driver.TickInterval = cfg.TickInterval()
	driver.Start(ctx)
	defer driver.Stop()

	if path := c.String("config"); path != "" {
		watchClock(ctx, path, src, cfg.Clock, bus, log)
	}

	// HTTP
	handler := api.NewHandler(src, registry, bus, log)
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(handler, cfg.Server.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Bool("real_time", src.IsRealTime()).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

// watchClock re-applies the clock section whenever the config file changes.
func watchClock(ctx context.Context, path string, src *clock.Source, initial config.ClockConfig, bus notify.Bus, log zerolog.Logger) {
	cw := config.NewClockWatcher(src, initial, logging.Component(log, "config"))
	cw.OnApply = func(config.ClockConfig) {
		bus.Publish(notify.ClockEvent(notify.TypeClockChanged, src.Status()))
	}
	go func() {
		if err := config.Watch(ctx, path, log, cw.Update); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("config watch disabled")
		}
	}()
}
