/*
Package config loads the service configuration file.

PURPOSE:
  One YAML (or JSON) file configures the HTTP server, storage, logging,
  the clock and the scheduler. YAML is converted to JSON and decoded
  strictly, so unknown keys are rejected in both formats.

EXAMPLE:
  server:
    addr: ":8080"
    cors_origins: ["http://localhost:3000"]
  storage:
    path: ./data/payments.db
  log:
    level: info
    format: console
  clock:
    mode: fake            # real | fake
    speed: 3600           # 1, 60, 3600 or 86400
    start: 2025-01-01T00:00:00Z
    paused: false
  scheduler:
    tick_interval: 100ms
  wallets: [default_wallet]

HOT RELOAD:
  Watch re-reads the file when it changes. Only the clock section is
  applied at runtime; the rest needs a restart.

SEE ALSO:
  - cmd/server/main.go: loading, flag overrides, watch wiring
  - clock/source.go: what ClockConfig.Apply drives
*/
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/warp/scheduled-payments/clock"
	"github.com/warp/scheduled-payments/logging"
)

const (
	ClockModeReal = "real"
	ClockModeFake = "fake"

	DefaultAddr         = ":8080"
	DefaultStoragePath  = "./data/payments.db"
	DefaultTickInterval = 100 * time.Millisecond
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Storage   StorageConfig   `json:"storage"`
	Log       logging.Config  `json:"log"`
	Clock     ClockConfig     `json:"clock"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Wallets   []string        `json:"wallets,omitempty"`
}

type ServerConfig struct {
	Addr        string   `json:"addr"`
	CORSOrigins []string `json:"cors_origins,omitempty"`
}

type StorageConfig struct {
	Path string `json:"path"` // ":memory:" for a throwaway database
}

// ClockConfig selects the active clock.
type ClockConfig struct {
	Mode   string  `json:"mode"`
	Speed  float64 `json:"speed,omitempty"`
	Start  string  `json:"start,omitempty"` // RFC 3339, fake mode only
	Paused bool    `json:"paused,omitempty"`
}

type SchedulerConfig struct {
	TickInterval string `json:"tick_interval,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Addr: DefaultAddr},
		Storage: StorageConfig{Path: DefaultStoragePath},
		Log:     logging.Config{Level: "info", Format: "console"},
		Clock:   ClockConfig{Mode: ClockModeReal},
	}
}

// Load reads, decodes and validates the file at path. Missing sections
// keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, data)
}

// Parse decodes data; the extension of path selects YAML or JSON.
func Parse(path string, data []byte) (*Config, error) {
	jb, _, err := coerceToJSONBytes(path, data)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr: required"))
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		errs = append(errs, errors.New("storage.path: required"))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	if err := c.Clock.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationOrDefault("scheduler.tick_interval", c.Scheduler.TickInterval, DefaultTickInterval); err != nil {
		errs = append(errs, err)
	}
	seen := make(map[string]bool, len(c.Wallets))
	for _, w := range c.Wallets {
		if strings.TrimSpace(w) == "" {
			errs = append(errs, errors.New("wallets: empty wallet name"))
		} else if seen[w] {
			errs = append(errs, fmt.Errorf("wallets: %q listed twice", w))
		}
		seen[w] = true
	}
	return errors.Join(errs...)
}

// TickInterval returns the scheduler tick interval, defaulted.
func (c *Config) TickInterval() time.Duration {
	d, _ := ParseDurationOrDefault("scheduler.tick_interval", c.Scheduler.TickInterval, DefaultTickInterval)
	return d
}

// =============================================================================
// CLOCK SECTION
// =============================================================================

func (c ClockConfig) Validate() error {
	switch c.Mode {
	case "", ClockModeReal:
		if c.Start != "" || c.Paused {
			return errors.New("clock: start and paused need mode fake")
		}
		return nil
	case ClockModeFake:
	default:
		return fmt.Errorf("clock.mode: unknown mode %q", c.Mode)
	}
	if !clock.ValidSpeed(c.speed()) {
		return fmt.Errorf("clock.speed: %v is not one of %v", c.Speed, clock.Speeds)
	}
	if _, err := c.StartTime(); err != nil {
		return err
	}
	return nil
}

// StartTime parses Start; zero when unset.
func (c ClockConfig) StartTime() (time.Time, error) {
	if strings.TrimSpace(c.Start) == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(c.Start))
	if err != nil {
		return time.Time{}, fmt.Errorf("clock.start: %w", err)
	}
	return t, nil
}

func (c ClockConfig) speed() float64 {
	if c.Speed == 0 {
		return clock.SpeedSecond
	}
	return c.Speed
}

// Apply drives src to the configured clock.
func (c ClockConfig) Apply(src *clock.Source) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Mode != ClockModeFake {
		src.SwitchToReal()
		return nil
	}
	if err := src.SwitchToFake(c.speed()); err != nil {
		return err
	}
	start, _ := c.StartTime()
	if !start.IsZero() {
		if err := src.SetFakeTime(start); err != nil {
			return err
		}
	}
	if c.Paused {
		return src.Pause()
	}
	return nil
}
