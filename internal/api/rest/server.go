package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Wideyedwonderer/buscuit-maker/internal/api/websocket"
	"github.com/Wideyedwonderer/buscuit-maker/internal/auth"
	"github.com/Wideyedwonderer/buscuit-maker/internal/config"
	"github.com/Wideyedwonderer/buscuit-maker/internal/interfaces"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router    *gin.Engine
	lm        interfaces.LifecycleManager
	logger    *zap.Logger
	server    *http.Server
	wsHub     *websocket.Hub
	issuer    *auth.TokenIssuer
	validator *Validator
	addr      net.Addr
}

// NewServer builds the HTTP API. A nil issuer disables authentication.
func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, issuer *auth.TokenIssuer) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:    gin.New(),
		lm:        lm,
		logger:    logger,
		wsHub:     wsHub,
		issuer:    issuer,
		validator: validator,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the port and serves in the background.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}

	s.addr = lis.Addr()
	s.logger.Info("Starting REST API server", zap.String("address", s.addr.String()))
	go func() {
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

// Addr is the bound address once Start has returned.
func (s *Server) Addr() net.Addr {
	return s.addr
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)

	authenticated := auth.Middleware(s.issuer)
	operator := auth.RequireRole(auth.RoleOperator)
	viewer := auth.RequireRole(auth.RoleViewer)

	// State switch kept at the root for older dashboards
	s.router.POST("/", authenticated, operator, s.switchMachineState)

	v1 := s.router.Group("/api/v1")
	v1.Use(authenticated)
	{
		machine := v1.Group("/machine")
		{
			machine.POST("", operator, s.switchMachineState)
			machine.POST("/command", operator, s.executeMachineCommand)
			machine.GET("/status", viewer, s.getMachineStatus)
			machine.GET("/config", viewer, s.getMachineConfig)
		}

		v1.GET("/journal", viewer, s.getJournal)
		v1.GET("/system/status", viewer, s.getSystemStatus)

		ws := v1.Group("/ws")
		{
			ws.GET("/live", viewer, s.wsLiveConnection)
			ws.GET("/status", viewer, s.wsStatus)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	role, _ := auth.RoleFromContext(c)
	websocket.ServeWs(s.wsHub, c.Writer, c.Request, role.Allows(auth.RoleOperator))
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.wsHub.Status())
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
