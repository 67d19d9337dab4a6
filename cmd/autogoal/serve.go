package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ChamsBouzaiene/autogoal/internal/config"
	"github.com/ChamsBouzaiene/autogoal/internal/engine"
	"github.com/ChamsBouzaiene/autogoal/internal/observability"
	"github.com/ChamsBouzaiene/autogoal/internal/providers"
	"github.com/ChamsBouzaiene/autogoal/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type serveFlags struct {
	addr            string
	otlpEndpoint    string
	trustPrivileged bool
	noHistory       bool
	debug           bool
	corsOrigins     []string
}

func serveCmd(g *globalFlags) *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent endpoints and streamed runs over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, g, f)
		},
	}
	cmd.Flags().StringVar(&f.addr, "addr", "", "Listen address (default listen_addr from config, or :8080)")
	cmd.Flags().StringVar(&f.otlpEndpoint, "otlp-endpoint", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), "Export traces over OTLP/HTTP to host:port")
	cmd.Flags().BoolVar(&f.trustPrivileged, "trust-privileged", false, "Honour the privileged flag of /api/runs requests")
	cmd.Flags().BoolVar(&f.noHistory, "no-history", false, "Do not record runs started through /api/runs")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "Gin debug mode and request logging")
	cmd.Flags().StringSliceVar(&f.corsOrigins, "cors-origin", nil, "Allowed CORS origins (default all)")
	return cmd
}

func serve(cmd *cobra.Command, g *globalFlags, f *serveFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := prepareRuntimeEnv(g, nil)
	if err != nil {
		return err
	}
	defer env.Close()
	// The server always logs; -v only adds engine internals.
	logger := env.logger
	if !g.verbose {
		logger = newServerLogger()
	}
	env.watcher.OnReload(func(c *config.Config) {
		logger.Printf("🔄 Settings reloaded (provider=%s model=%s)", c.Provider, c.Model)
	})

	cfg := env.cfg()
	// The server answers with its own credential; callers never send one.
	direct, err := providers.NewDirect(providers.DirectOptions{
		Retry:    engine.DefaultRetryPolicy(),
		MockMode: cfg.MockMode,
		Provider: cfg.Provider,
		APIKey:   cfg.APIKey,
		Model:    cfg.Model,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	metrics, err := observability.DefaultMetrics()
	if err != nil {
		return err
	}
	hooks := []engine.Hook{metrics, observability.NewTracingHook(nil)}
	if g.verbose {
		hooks = append(hooks, engine.LoggerHook{L: logger})
	}

	if f.otlpEndpoint != "" {
		tp, err := observability.NewOTLPTracerProvider(ctx, f.otlpEndpoint, "autogoal")
		if err != nil {
			return err
		}
		defer tp.Shutdown(context.WithoutCancel(ctx))
		logger.Printf("📡 Exporting traces to %s", f.otlpEndpoint)
	}

	if !f.noHistory {
		if err := env.openHistory(ctx); err != nil {
			logger.Printf("⚠️  History disabled: %v", err)
		}
	}

	addr := f.addr
	if addr == "" {
		addr = cfg.ListenAddr
	}
	if addr == "" {
		addr = ":8080"
	}

	// Streamed runs are consumed by programs, so they are not paced.
	engineCfg := cfg.EngineConfig()
	engineCfg.Pacing = engine.Pacing{}

	srv, err := server.New(server.Config{
		Addr:              addr,
		Provider:          direct,
		Engine:            engineCfg,
		Defaults:          env.watcher,
		Hooks:             hooks,
		AuthToken:         cfg.ServerToken,
		TrustPrivileged:   f.trustPrivileged,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Store:             env.store,
		Index:             env.index,
		CORSOrigins:       f.corsOrigins,
		Debug:             f.debug,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error { return srv.Run(gctx) })
	grp.Go(func() error {
		if err := env.watcher.Run(gctx); err != nil {
			logger.Printf("⚠️  Settings will not reload: %v", err)
		}
		return nil
	})
	return grp.Wait()
}
