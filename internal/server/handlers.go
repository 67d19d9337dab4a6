package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ChamsBouzaiene/autogoal/internal/engine"
	"github.com/ChamsBouzaiene/autogoal/internal/engine/protocol"
	"github.com/ChamsBouzaiene/autogoal/internal/history"
	"github.com/ChamsBouzaiene/autogoal/internal/providers"
	"github.com/gin-gonic/gin"
)

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, providers.ErrorResponse{Error: msg})
}

// providerFailure maps a provider error onto the HTTP answer the mediated
// client turns back into an *engine.ProviderError.
func providerFailure(c *gin.Context, err error) {
	status := engine.HTTPStatusOf(err)
	if status < 400 {
		status = http.StatusBadGateway
	}
	var pe *engine.ProviderError
	if errors.As(err, &pe) && pe.RetryAfter != "" {
		c.Header("Retry-After", pe.RetryAfter)
	}
	abortWithError(c, status, err.Error())
}

func (s *Server) bind(c *gin.Context) (providers.AgentRequest, bool) {
	var req providers.AgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return req, false
	}
	req.Goal = strings.TrimSpace(req.Goal)
	if req.Goal == "" {
		abortWithError(c, http.StatusBadRequest, engine.ErrEmptyGoal.Error())
		return req, false
	}
	req.ModelSettings = s.mergeSettings(req.ModelSettings)
	return req, true
}

// mergeSettings fills fields the request left empty from the server defaults.
func (s *Server) mergeSettings(in engine.ModelSettings) engine.ModelSettings {
	if s.cfg.Defaults == nil {
		return in
	}
	def := s.cfg.Defaults.ModelSettings()
	if in.Provider == "" {
		in.Provider = def.Provider
	}
	if in.CustomModelName == "" {
		in.CustomModelName = def.CustomModelName
	}
	if in.CustomTemperature == 0 {
		in.CustomTemperature = def.CustomTemperature
	}
	if in.Language == "" {
		in.Language = def.Language
	}
	return in
}

func (s *Server) handleStart(c *gin.Context) {
	req, ok := s.bind(c)
	if !ok {
		return
	}
	tasks, err := s.cfg.Provider.ProposeInitialTasks(c.Request.Context(), req.ModelSettings, req.Goal)
	if err != nil {
		s.logger.Printf("❌ start failed: %v", err)
		providerFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, providers.TasksResponse{NewTasks: nonNil(tasks)})
}

func (s *Server) handleCreate(c *gin.Context) {
	req, ok := s.bind(c)
	if !ok {
		return
	}
	tasks, err := s.cfg.Provider.ProposeAdditionalTasks(c.Request.Context(), req.ModelSettings, req.Goal,
		req.Tasks, req.LastTask, req.Result, req.CompletedTasks)
	if err != nil {
		s.logger.Printf("❌ create failed: %v", err)
		providerFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, providers.TasksResponse{NewTasks: nonNil(tasks)})
}

func (s *Server) handleExecute(c *gin.Context) {
	req, ok := s.bind(c)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Task) == "" {
		abortWithError(c, http.StatusBadRequest, "task must not be empty")
		return
	}
	out, err := s.cfg.Provider.ExecuteTask(c.Request.Context(), req.ModelSettings, req.Goal, req.Task)
	if err != nil {
		s.logger.Printf("❌ execute failed: %v", err)
		providerFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, providers.ExecuteResponse{Response: out})
}

func nonNil(tasks []string) []string {
	if tasks == nil {
		return []string{}
	}
	return tasks
}

// RunRequest starts a full run on the server.
type RunRequest struct {
	Goal       string               `json:"goal"`
	Settings   engine.ModelSettings `json:"settings"`
	Privileged bool                 `json:"privileged,omitempty"`
}

// flushWriter pushes every NDJSON line to the client as soon as it is
// written.
type flushWriter struct {
	w gin.ResponseWriter
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	f.w.Flush()
	return n, err
}

// handleRun drives a run to completion and streams protocol events. A client
// disconnect cancels the request context, which halts the run manually.
func (s *Server) handleRun(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	goal := strings.TrimSpace(req.Goal)
	if goal == "" {
		abortWithError(c, http.StatusBadRequest, engine.ErrEmptyGoal.Error())
		return
	}

	ctx := c.Request.Context()
	runID := protocol.NewRunID()
	var session *engine.Session
	if req.Privileged && s.cfg.TrustPrivileged {
		session = &engine.Session{UserID: c.ClientIP(), SubscriptionID: "server"}
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Run-Id", runID)
	c.Status(http.StatusOK)
	out := protocol.NewWriter(flushWriter{w: c.Writer})

	onErr := func(err error) { s.logger.Printf("⚠️  stream %s: %v", runID, err) }
	sink := out.Sink(runID, onErr)

	var rec *history.Recorder
	if s.cfg.Store != nil {
		var err error
		rec, err = history.NewRecorder(ctx, s.cfg.Store, s.cfg.Index, runID, goal, s.logger)
		if err != nil {
			s.logger.Printf("⚠️  history disabled for %s: %v", runID, err)
		} else {
			sink = rec.Sink(sink)
		}
	}

	agent, err := engine.NewAgent(engine.Options{
		ID:       runID,
		Goal:     goal,
		Provider: s.cfg.Provider,
		Settings: engine.StaticSettings(s.mergeSettings(req.Settings)),
		Session:  session,
		Config:   s.cfg.Engine,
		Sink:     sink,
		Hooks:    s.cfg.Hooks,
	})
	if err != nil {
		_ = out.Write(protocol.NewErrorEvent(runID, err.Error()))
		return
	}

	if err := out.Write(protocol.NewRunStartedEvent(runID, goal)); err != nil {
		onErr(err)
	}
	_, runErr := agent.Run(ctx)
	snap := agent.Snapshot()
	if rec != nil {
		if err := rec.Finish(context.WithoutCancel(ctx), snap, runErr); err != nil {
			s.logger.Printf("⚠️  history: %v", err)
		}
	}
	if err := out.Write(protocol.NewHaltEvent(snap, runErr)); err != nil {
		onErr(err)
	}
}
