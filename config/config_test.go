package config_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/scheduled-payments/clock"
	"github.com/warp/scheduled-payments/config"
)

const sampleYAML = `
server:
  addr: ":9090"
  cors_origins: ["http://localhost:3000"]
storage:
  path: ":memory:"
log:
  level: debug
  format: json
clock:
  mode: fake
  speed: 3600
  start: "2025-01-01T00:00:00Z"
  paused: true
scheduler:
  tick_interval: 250ms
wallets: [default_wallet, savings]
`

func TestParse_YAML(t *testing.T) {
	cfg, err := config.Parse("service.yaml", []byte(sampleYAML))

	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.Equal(t, ":memory:", cfg.Storage.Path)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, config.ClockConfig{Mode: "fake", Speed: 3600, Start: "2025-01-01T00:00:00Z", Paused: true}, cfg.Clock)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval())
	assert.Equal(t, []string{"default_wallet", "savings"}, cfg.Wallets)
}

func TestParse_JSONKeepsDefaults(t *testing.T) {
	cfg, err := config.Parse("service.json", []byte(`{"wallets":["w"]}`))

	require.NoError(t, err)
	assert.Equal(t, config.DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, config.DefaultStoragePath, cfg.Storage.Path)
	assert.Equal(t, config.ClockModeReal, cfg.Clock.Mode)
	assert.Equal(t, config.DefaultTickInterval, cfg.TickInterval())
}

func TestParse_EmptyYAML(t *testing.T) {
	cfg, err := config.Parse("service.yml", nil)

	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "server:\n  port: 80\n"},
		{"unknown mode", "clock:\n  mode: sundial\n"},
		{"unsupported speed", "clock:\n  mode: fake\n  speed: 2\n"},
		{"bad start", "clock:\n  mode: fake\n  start: yesterday\n"},
		{"paused real clock", "clock:\n  mode: real\n  paused: true\n"},
		{"bad tick interval", "scheduler:\n  tick_interval: fast\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"duplicate wallet", "wallets: [a, a]\n"},
		{"empty addr", "server:\n  addr: \"\"\n"},
		{"malformed", "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse("service.yaml", []byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParse_TrailingJSON(t *testing.T) {
	_, err := config.Parse("service.json", []byte(`{} {}`))
	assert.Error(t, err)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// =============================================================================
// CLOCK SECTION
// =============================================================================

func TestClockConfig_Apply(t *testing.T) {
	src := clock.NewSource(nil)
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	err := config.ClockConfig{Mode: "fake", Speed: 60, Start: "2025-01-01T00:00:00Z", Paused: true}.Apply(src)

	require.NoError(t, err)
	st := src.Status()
	assert.False(t, st.RealTime)
	assert.Equal(t, float64(60), st.Multiplier)
	assert.True(t, st.Paused)
	assert.True(t, start.Equal(st.Now))

	require.NoError(t, config.ClockConfig{Mode: "real"}.Apply(src))
	assert.True(t, src.IsRealTime())
}

func TestClockConfig_FakeDefaultsToOneSecondPerSecond(t *testing.T) {
	src := clock.NewSource(nil)

	require.NoError(t, config.ClockConfig{Mode: "fake"}.Apply(src))

	assert.Equal(t, clock.SpeedSecond, src.Status().Multiplier)
}

func TestClockWatcher_AppliesOnlyChanges(t *testing.T) {
	src := clock.NewSource(nil)
	cw := config.NewClockWatcher(src, config.ClockConfig{Mode: "real"}, zerolog.Nop())
	var applied int
	cw.OnApply = func(config.ClockConfig) { applied++ }

	cfg := config.Default()
	cw.Update(cfg)
	assert.Equal(t, 0, applied)

	cfg.Clock = config.ClockConfig{Mode: "fake", Speed: 86400}
	cw.Update(cfg)
	cw.Update(cfg)
	assert.Equal(t, 1, applied)
	assert.Equal(t, clock.SpeedDay, src.Status().Multiplier)

	// invalid sections are not applied
	bad := config.Default()
	bad.Clock = config.ClockConfig{Mode: "fake", Speed: 7}
	cw.Update(bad)
	assert.Equal(t, 1, applied)
	assert.Equal(t, clock.SpeedDay, src.Status().Multiplier)
}

// =============================================================================
// WATCH
// =============================================================================

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "service.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clock:\n  mode: real\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var got atomic.Value
	done := make(chan error, 1)
	go func() {
		done <- config.Watch(ctx, path, zerolog.Nop(), func(c *config.Config) { got.Store(c.Clock) })
	}()

	// rewrite until the watcher has noticed; writes are spaced past the debounce
	require.Eventually(t, func() bool {
		if v, ok := got.Load().(config.ClockConfig); ok {
			return v.Mode == "fake"
		}
		_ = os.WriteFile(path, []byte("clock:\n  mode: fake\n  speed: 60\n"), 0o644)
		return false
	}, 5*time.Second, 300*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
