package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/booster/pkg/events"
	"github.com/cuemby/booster/pkg/execution"
	"github.com/cuemby/booster/pkg/executor"
	"github.com/cuemby/booster/pkg/log"
	"github.com/cuemby/booster/pkg/manager"
	"github.com/cuemby/booster/pkg/metrics"
	"github.com/cuemby/booster/pkg/reconciler"
	"github.com/cuemby/booster/pkg/staging"
	"github.com/cuemby/booster/pkg/storage"
	"github.com/cuemby/booster/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Controller is the set of intents the API exposes
type Controller interface {
	View() *manager.View
	Stage(id string, op types.Operation) error
	Unstage(id string)
	Toggle(id string) (types.Operation, error)
	Execute(ctx context.Context) (*executor.Report, error)
	Cancel(id string) error
	Reset()
	Sync(ctx context.Context) (*reconciler.Result, error)
	History(boosterID string, limit int) ([]*storage.ExecutionEntry, error)
	Subscribe() events.Subscriber
	Unsubscribe(sub events.Subscriber)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StageRequest is the body of POST /api/stage
type StageRequest struct {
	BoosterID string          `json:"boosterId" binding:"required"`
	Operation types.Operation `json:"operation" binding:"required,oneof=apply revert"`
}

// Server is the local control API over HTTP
type Server struct {
	ctrl     Controller
	readOnly bool
	rps      float64
	burst    int
	mu       sync.Mutex
	http     *http.Server
	logger   zerolog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithReadOnly rejects every state-changing request
func WithReadOnly(readOnly bool) Option {
	return func(s *Server) {
		s.readOnly = readOnly
	}
}

// WithRateLimit limits each client to rps requests per second on /api.
// rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		s.rps = rps
		s.burst = burst
	}
}

// NewServer creates a new API server
func NewServer(ctrl Controller, opts ...Option) *Server {
	s := &Server{
		ctrl:   ctrl,
		logger: log.WithComponent("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the gin engine serving the API
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(s.logger))

	router.GET("/health", gin.WrapF(metrics.HealthHandler()))
	router.GET("/ready", gin.WrapF(metrics.ReadyHandler()))
	router.GET("/live", gin.WrapF(metrics.LivenessHandler()))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	if s.rps > 0 {
		api.Use(RateLimit(s.rps, s.burst))
	}
	if s.readOnly {
		api.Use(ReadOnly())
	}
	api.GET("/state", s.handleState)
	api.GET("/boosters", s.handleBoosters)
	api.GET("/history", s.handleHistory)
	api.GET("/notifications", s.handleNotifications)

	api.POST("/stage", s.handleStage)
	api.DELETE("/stage/:id", s.handleUnstage)
	api.POST("/toggle/:id", s.handleToggle)
	api.POST("/execute", s.handleExecute)
	api.POST("/executions/:id/cancel", s.handleCancel)
	api.POST("/reset", s.handleReset)
	api.POST("/sync", s.handleSync)

	return router
}

// Start listens on addr until Stop is called
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	s.logger.Info().Str("addr", addr).Bool("read_only", s.readOnly).Msg("API listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, toStateResponse(s.ctrl.View()))
}

func (s *Server) handleBoosters(c *gin.Context) {
	category := c.Query("category")
	items := make([]*types.BoosterItem, 0)
	for _, item := range s.ctrl.View().Items {
		if category == "" || item.Category == category {
			items = append(items, item)
		}
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	entries, err := s.ctrl.History(c.Query("booster"), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if entries == nil {
		entries = []*storage.ExecutionEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) handleStage(c *gin.Context) {
	var req StageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.ctrl.Stage(req.BoosterID, req.Operation); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"staged": s.ctrl.View().Staged})
}

func (s *Server) handleUnstage(c *gin.Context) {
	s.ctrl.Unstage(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"staged": s.ctrl.View().Staged})
}

func (s *Server) handleToggle(c *gin.Context) {
	op, err := s.ctrl.Toggle(c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"boosterId": c.Param("id"), "operation": op})
}

func (s *Server) handleExecute(c *gin.Context) {
	report, err := s.ctrl.Execute(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ReportResponse{
		Batch:     report.Batch,
		Issues:    report.Issues,
		Submitted: report.Submitted,
		Failed:    report.Failed,
	})
}

func (s *Server) handleCancel(c *gin.Context) {
	if err := s.ctrl.Cancel(c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleReset(c *gin.Context) {
	s.ctrl.Reset()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSync(c *gin.Context) {
	res, err := s.ctrl.Sync(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// handleNotifications streams broker events to a websocket client until it
// disconnects
func (s *Server) handleNotifications(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer ws.Close()

	sub := s.ctrl.Subscribe()
	defer s.ctrl.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := ws.WriteJSON(toNotification(ev)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// writeError maps domain errors to status codes
func (s *Server) writeError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, staging.ErrUnknownBooster),
		errors.Is(err, execution.ErrNotFound),
		errors.Is(err, manager.ErrHistoryDisabled):
		code = http.StatusNotFound
	case errors.Is(err, staging.ErrInvalidOperation):
		code = http.StatusBadRequest
	case errors.Is(err, executor.ErrNothingStaged),
		errors.Is(err, executor.ErrBatchInProgress),
		errors.Is(err, execution.ErrNotCancellable):
		code = http.StatusConflict
	}
	if code == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	c.JSON(code, gin.H{"error": fmt.Sprint(err)})
}
