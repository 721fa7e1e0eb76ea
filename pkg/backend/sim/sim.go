package sim

import (
	"context"
	"errors"
	"net/http"

	"github.com/cuemby/booster/pkg/backend"
	"github.com/cuemby/booster/pkg/log"
	"github.com/cuemby/booster/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server exposes a Backend over the HTTP + websocket binding HTTPClient speaks
type Server struct {
	backend backend.Backend
	logger  zerolog.Logger
}

// NewServer creates a server for b
func NewServer(b backend.Backend) *Server {
	return &Server{
		backend: b,
		logger:  log.WithComponent("sim"),
	}
}

// Router returns the gin engine serving the executor API
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	api.GET("/boosters", s.handleListBoosters)
	api.POST("/boosters/:id/:operation", s.handleExecute)
	api.GET("/queue", s.handleQueue)
	api.GET("/executions/:id", s.handleExecutionStatus)
	api.GET("/events", s.handleEvents)

	return router
}

func (s *Server) handleListBoosters(c *gin.Context) {
	items, err := s.backend.GetBoostersByCategory(c.Request.Context(), c.Query("category"), c.Query("language"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if items == nil {
		items = []*types.BoosterItem{}
	}
	c.JSON(http.StatusOK, items)
}

func (s *Server) handleExecute(c *gin.Context) {
	op := types.Operation(c.Param("operation"))
	if !op.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "operation must be apply or revert"})
		return
	}

	result, err := s.backend.ExecuteBooster(c.Request.Context(), c.Param("id"), op)
	if err != nil {
		if errors.Is(err, backend.ErrUnknownBooster) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleQueue(c *gin.Context) {
	state, err := s.backend.GetExecutionQueueState(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleExecutionStatus(c *gin.Context) {
	confirmer, ok := s.backend.(backend.StatusConfirmer)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "status confirmation not supported"})
		return
	}
	status, msg, err := confirmer.GetExecutionStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"boosterId": c.Param("id"), "status": status, "error": msg})
}

func (s *Server) handleEvents(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// the client never sends data; a read error means it went away
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	out := make(chan []byte, 256)
	go func() {
		err := s.backend.SubscribeEvents(ctx, func(payload []byte) {
			select {
			case out <- payload:
			default:
				s.logger.Warn().Msg("event client too slow, dropping event")
			}
		})
		if err != nil {
			s.logger.Debug().Err(err).Msg("event subscription ended")
		}
		cancel()
	}()

	for {
		select {
		case payload := <-out:
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
