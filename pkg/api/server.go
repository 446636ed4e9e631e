package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/srcpsp/deepthought/internal/config"
	"github.com/srcpsp/deepthought/pkg/auth"
	"github.com/srcpsp/deepthought/pkg/store"
)

// Server represents the scheduling API server: the HTTP/WS surface over
// precompute, simulate and optimize (SPEC_FULL §6.5).
type Server struct {
	config    *config.Config
	store     *store.Store
	jwtSvc    *auth.JWTService
	auth      *auth.Middleware
	logger    *slog.Logger
	server    *http.Server
	websocket *WebSocketHub
}

// NewServer creates a new API server instance.
func NewServer(cfg *config.Config, st *store.Store, logger *slog.Logger) (*Server, error) {
	jwtSvc, err := auth.NewJWTService(&cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	websocketHub := NewWebSocketHub(logger)

	server := &Server{
		config:    cfg,
		store:     st,
		jwtSvc:    jwtSvc,
		auth:      auth.NewMiddleware(jwtSvc),
		logger:    logger,
		websocket: websocketHub,
	}

	return server, nil
}

// Start starts the API server.
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRouter()

	s.server = &http.Server{
		Addr:         s.config.API.Listen,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go s.websocket.Run()

	s.logger.Info("starting API server",
		"address", s.config.API.Listen,
		"tls_enabled", s.config.API.TLSEnabled)

	if s.config.API.TLSEnabled {
		return s.server.ListenAndServeTLS(s.config.API.CertFile, s.config.API.KeyFile)
	}
	return s.server.ListenAndServe()
}

// Stop gracefully stops the API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")

	s.websocket.Stop()

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// setupRouter configures the Gin router with middleware and routes.
func (s *Server) setupRouter() *gin.Engine {
	if s.logger.Enabled(context.Background(), slog.LevelDebug) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(s.loggingMiddleware())
	router.Use(gin.Recovery())
	router.Use(s.corsMiddleware())
	router.Use(s.securityMiddleware())

	if s.config.API.RateLimit.Enabled {
		router.Use(s.rateLimitMiddleware())
	}

	router.GET("/health", s.healthHandler)
	router.GET("/metrics", s.metricsHandler)

	v1 := router.Group("/v1")
	{
		jobs := v1.Group("/jobs")
		jobs.Use(s.auth.RequireAuth())
		{
			jobs.POST("/:id/precompute", s.auth.RequirePermission(auth.PermissionJobManage), s.precomputeHandler)
			jobs.POST("/:id/simulate", s.auth.RequirePermission(auth.PermissionSimulateRun), s.simulateHandler)
			jobs.POST("/:id/optimize", s.auth.RequirePermission(auth.PermissionOptimizeRun), s.optimizeHandler)
			jobs.GET("/:id", s.auth.RequirePermission(auth.PermissionJobRead), s.getJobHandler)
		}
	}

	router.GET("/ws/jobs/:id/optimize", s.optimizeWebsocketHandler)

	return router
}
