package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cvrisk-engine/internal/domain"
	"github.com/cvrisk-engine/internal/service"
)

// Server represents the HTTP server.
type Server struct {
	configManager domain.ConfigManager
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server

	orchestrator *service.Orchestrator
	evaluator    *service.Evaluator
	simulator    *service.InterventionSimulator
	store        domain.EvaluationStore
	eventHandler http.Handler // nil when the websocket hub is disabled
}

// NewServer creates a new HTTP server instance.
func NewServer(
	configManager domain.ConfigManager,
	logger *logrus.Logger,
	orchestrator *service.Orchestrator,
	evaluator *service.Evaluator,
	store domain.EvaluationStore,
	eventHandler http.Handler,
) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestIDMiddleware())

	server := &Server{
		configManager: configManager,
		logger:        logger,
		router:        router,
		orchestrator:  orchestrator,
		evaluator:     evaluator,
		simulator:     service.NewInterventionSimulator(logger),
		store:         store,
		eventHandler:  eventHandler,
	}

	server.setupRoutes()
	return server
}

// Start starts the HTTP server and blocks until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// setupRoutes configures the API routes.
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	if s.eventHandler != nil {
		s.router.GET("/ws/events", gin.WrapH(s.eventHandler))
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/evaluate", s.handleEvaluate)
		v1.POST("/eligibility", s.handleEligibility)
		v1.POST("/simulate", s.handleSimulate)
		v1.GET("/evaluations/:id", s.handleGetEvaluation)
		v1.GET("/medications", s.handleListMedications)
	}
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	})
}

// corsMiddleware adds CORS headers to responses.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "Content-Length, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestIDMiddleware adds a unique request ID to each request.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString("request_id")
}
