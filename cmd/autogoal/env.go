package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/ChamsBouzaiene/autogoal/internal/config"
	"github.com/ChamsBouzaiene/autogoal/internal/engine"
	"github.com/ChamsBouzaiene/autogoal/internal/history"
	"github.com/ChamsBouzaiene/autogoal/internal/providers"
)

// runtimeEnv carries what every command needs: the config file, the live
// settings and, once opened, the run history.
type runtimeEnv struct {
	manager *config.Manager
	watcher *config.Watcher
	logger  *log.Logger

	store *history.Store
	index *history.Index
}

// prepareRuntimeEnv loads the config file and overlays the environment and
// then override, in that order, on every (re)load.
func prepareRuntimeEnv(g *globalFlags, override func(*config.Config)) (*runtimeEnv, error) {
	var manager *config.Manager
	if g.configPath != "" {
		manager = config.NewManagerAt(g.configPath)
	} else {
		var err error
		manager, err = config.NewManager()
		if err != nil {
			return nil, err
		}
	}

	logger := log.New(io.Discard, "", 0)
	if g.verbose {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	watcher, err := config.NewWatcher(manager, func(c *config.Config) error {
		if err := c.ApplyEnv(os.Getenv); err != nil {
			return err
		}
		if override != nil {
			override(c)
		}
		return nil
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", manager.Path(), err)
	}

	return &runtimeEnv{
		manager: manager,
		watcher: watcher,
		logger:  logger,
	}, nil
}

// cfg returns the current effective configuration.
func (e *runtimeEnv) cfg() *config.Config {
	return e.watcher.Current()
}

// watch keeps the settings live until ctx ends. A missing config directory
// only disables live reloads.
func (e *runtimeEnv) watch(ctx context.Context) {
	go func() {
		if err := e.watcher.Run(ctx); err != nil {
			e.logger.Printf("⚠️  Settings will not reload: %v", err)
		}
	}()
}

func (e *runtimeEnv) historyPath() string {
	if p := e.cfg().HistoryDB; p != "" {
		return p
	}
	return filepath.Join(filepath.Dir(e.manager.Path()), "history.db")
}

// openHistory opens the store and its search index next to it.
func (e *runtimeEnv) openHistory(ctx context.Context) error {
	path := e.historyPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create history dir: %w", err)
	}
	store, err := history.OpenStore(ctx, path)
	if err != nil {
		return err
	}
	index, err := history.OpenIndex(path + ".bleve")
	if err != nil {
		store.Close()
		return err
	}
	e.store, e.index = store, index
	return nil
}

func (e *runtimeEnv) Close() {
	if e.index != nil {
		e.index.Close()
	}
	if e.store != nil {
		e.store.Close()
	}
}

// buildRouter wires the direct path and, when a server is configured, the
// mediated one.
func buildRouter(cfg *config.Config, logger *log.Logger) (*providers.Router, error) {
	direct, err := providers.NewDirect(providers.DirectOptions{
		Retry:    engine.DefaultRetryPolicy(),
		MockMode: cfg.MockMode,
		Provider: cfg.Provider,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	router := &providers.Router{Direct: direct}

	if cfg.ServerURL != "" {
		mediated, err := providers.NewMediated(providers.MediatedOptions{
			BaseURL:           cfg.ServerURL,
			AuthToken:         cfg.ServerToken,
			RequestsPerSecond: cfg.RequestsPerSecond,
		})
		if err != nil {
			return nil, err
		}
		router.Mediated = mediated
	}
	return router, nil
}

func buildHooks(logger *log.Logger, verbose bool) []engine.Hook {
	if !verbose {
		return nil
	}
	return []engine.Hook{engine.LoggerHook{L: logger}}
}

func newServerLogger() *log.Logger {
	return log.New(os.Stderr, "", log.LstdFlags)
}
