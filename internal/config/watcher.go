package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ChamsBouzaiene/autogoal/internal/engine"
	"github.com/fsnotify/fsnotify"
)

// Watcher keeps the latest settings in memory and reloads them whenever the
// config file changes. It is an engine.SettingsSource, so a running loop
// picks up a new key or max-loops value at its next iteration.
type Watcher struct {
	manager      *Manager
	current      atomic.Pointer[Config]
	overlay      func(*Config) error
	debounceTime time.Duration
	logger       *log.Logger

	mu       sync.Mutex
	onReload []func(*Config)
}

// NewWatcher loads the file once. overlay, if set, is re-applied after every
// reload (environment and flags take precedence over the file).
func NewWatcher(m *Manager, overlay func(*Config) error, logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.Default()
	}
	w := &Watcher{
		manager:      m,
		overlay:      overlay,
		debounceTime: 200 * time.Millisecond,
		logger:       logger,
	}
	if err := w.reload(); err != nil {
		return nil, err
	}
	return w, nil
}

// Current returns the latest successfully loaded config. Callers must not
// modify it.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// ModelSettings implements engine.SettingsSource.
func (w *Watcher) ModelSettings() engine.ModelSettings {
	return w.Current().ModelSettings()
}

var _ engine.SettingsSource = (*Watcher)(nil)

// OnReload registers a callback run after each successful reload.
func (w *Watcher) OnReload(fn func(*Config)) {
	w.mu.Lock()
	w.onReload = append(w.onReload, fn)
	w.mu.Unlock()
}

func (w *Watcher) reload() error {
	cfg, err := w.manager.Load()
	if err != nil {
		return err
	}
	if w.overlay != nil {
		if err := w.overlay(cfg); err != nil {
			return fmt.Errorf("apply overrides: %w", err)
		}
	}
	w.current.Store(cfg)

	w.mu.Lock()
	callbacks := append([]func(*Config){}, w.onReload...)
	w.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
	return nil
}

// Run watches the config file until ctx is done. The directory is watched
// rather than the file so that atomic saves (write + rename) are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	dir := filepath.Dir(w.manager.Path())
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	target := filepath.Clean(w.manager.Path())

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounceTime)
			} else {
				timer.Reset(w.debounceTime)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := w.reload(); err != nil {
				w.logger.Printf("⚠️  Config reload failed, keeping previous settings: %v", err)
				continue
			}
			w.logger.Printf("🔄 Config reloaded from %s", target)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("⚠️  Watcher error: %v", err)
		}
	}
}
