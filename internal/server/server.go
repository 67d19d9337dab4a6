// Package server is the intermediary service: it answers the three agent
// endpoints with a server-side provider and can drive whole runs, streaming
// their progress as NDJSON.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/autogoal/internal/engine"
	"github.com/ChamsBouzaiene/autogoal/internal/history"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds the explicit dependencies of a Server.
type Config struct {
	Addr     string               // Listen address, e.g. ":8080"
	Provider engine.TaskProvider  // Serves the agent endpoints and full runs
	Engine   engine.Config        // Controller config for /api/runs
	Defaults engine.SettingsSource // Merged under request settings; may be nil
	Hooks    []engine.Hook

	// AuthToken, when set, is required as a bearer token on /api.
	AuthToken string
	// TrustPrivileged honours the privileged flag of /api/runs requests.
	TrustPrivileged bool

	// RequestsPerSecond limits each client; zero disables limiting.
	RequestsPerSecond float64
	Burst             int

	// Gatherer serves /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer

	// Optional run history for /api/runs.
	Store *history.Store
	Index *history.Index

	CORSOrigins []string // Empty allows all origins
	Debug       bool
	Logger      *log.Logger
}

// Server wraps the gin engine and its http.Server.
type Server struct {
	cfg        Config
	engine     *gin.Engine
	httpServer *http.Server
	logger     *log.Logger
	startTime  time.Time
}

// New builds the router.
func New(cfg Config) (*Server, error) {
	if cfg.Provider == nil {
		return nil, errors.New("server requires a task provider")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Debug {
		r.Use(gin.Logger())
	}

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	s := &Server{
		cfg:       cfg,
		engine:    r,
		logger:    cfg.Logger,
		startTime: time.Now(),
	}

	limiter, err := newClientLimiter(cfg.RequestsPerSecond, cfg.Burst)
	if err != nil {
		return nil, err
	}
	s.setupRoutes(limiter)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) setupRoutes(limiter *clientLimiter) {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})))

	api := s.engine.Group("/api")
	api.Use(authMiddleware(s.cfg.AuthToken))
	if limiter != nil {
		api.Use(limiter.middleware())
	}

	agent := api.Group("/agent")
	{
		agent.POST("/start", s.handleStart)
		agent.POST("/create", s.handleCreate)
		agent.POST("/execute", s.handleExecute)
	}
	api.POST("/runs", s.handleRun)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("🌐 Listening on %s", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
	})
}

func authMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			abortWithError(c, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		c.Next()
	}
}
