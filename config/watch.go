package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/warp/scheduled-payments/clock"
)

const watchDebounce = 200 * time.Millisecond

// Watch calls onChange with the re-parsed config whenever the file at path
// is written, until ctx ends. Invalid edits are logged and skipped; the
// previous config stays in effect. The directory is watched so that editors
// replacing the file by rename are noticed.
func Watch(ctx context.Context, path string, log zerolog.Logger, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch init: %w", err)
	}
	defer w.Close()

	dir, file := filepath.Dir(path), filepath.Base(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config watch %s: %w", dir, err)
	}
	log.Debug().Str("dir", dir).Str("file", file).Msg("config watcher started")

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		cfg, err := Load(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("config reload rejected")
			return
		}
		if ctx.Err() != nil {
			return
		}
		log.Info().Str("path", path).Msg("config reloaded")
		onChange(cfg)
	}
	// editors emit several events per save
	debounce := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, reload)
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Str("dir", dir).Msg("config watch error")
		}
	}
}

// ClockWatcher applies clock section changes to a clock source. Other
// sections are ignored.
type ClockWatcher struct {
	src  *clock.Source
	log  zerolog.Logger
	mu   sync.Mutex
	last ClockConfig

	// OnApply, when set, runs after a new clock section was applied.
	OnApply func(ClockConfig)
}

func NewClockWatcher(src *clock.Source, initial ClockConfig, log zerolog.Logger) *ClockWatcher {
	return &ClockWatcher{src: src, last: initial, log: log}
}

// Update applies cfg.Clock if it differs from the last applied section.
func (cw *ClockWatcher) Update(cfg *Config) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cfg.Clock == cw.last {
		return
	}
	if err := cfg.Clock.Apply(cw.src); err != nil {
		cw.log.Warn().Err(err).Msg("clock config not applied")
		return
	}
	cw.last = cfg.Clock
	cw.log.Info().Str("mode", cfg.Clock.Mode).Float64("speed", cfg.Clock.Speed).
		Bool("paused", cfg.Clock.Paused).Msg("clock config applied")
	if cw.OnApply != nil {
		cw.OnApply(cfg.Clock)
	}
}
