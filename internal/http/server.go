// Package http provides the HTTP API for voiced.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/voiceprintlabs/voiced/internal/embeddings"
	"github.com/voiceprintlabs/voiced/internal/featurestore"
)

// Server provides HTTP endpoints for voiced.
type Server struct {
	echo      *echo.Echo
	store     *featurestore.Store
	extractor embeddings.Extractor
	logger    *zap.Logger
	config    *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// MaxUploadBytes caps the size of uploaded audio clips.
	MaxUploadBytes int64

	// DefaultThreshold and DefaultTopK apply when a recognize request
	// leaves them unset.
	DefaultThreshold float32
	DefaultTopK      int
}

// NewServer creates a new HTTP server.
func NewServer(store *featurestore.Store, extractor embeddings.Extractor, logger *zap.Logger, cfg *Config) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 16 * 1024 * 1024
	}
	if cfg.DefaultThreshold == 0 {
		cfg.DefaultThreshold = featurestore.DefaultThreshold
	}
	if cfg.DefaultTopK == 0 {
		cfg.DefaultTopK = featurestore.DefaultTopK
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%d", cfg.MaxUploadBytes)))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:      e,
		store:     store,
		extractor: extractor,
		logger:    logger,
		config:    cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/voices/register", s.handleRegister)
	v1.POST("/voices/recognize", s.handleRecognize)
	v1.GET("/users", s.handleListUsers)
	v1.GET("/users/:user_id/persons", s.handleListPersons)
	v1.DELETE("/users/:user_id", s.handleDeleteUser)
	v1.DELETE("/users/:user_id/persons/:person_name", s.handleDeletePerson)
	v1.GET("/stats", s.handleGlobalStats)
	v1.GET("/stats/:user_id", s.handleTenantStats)
	v1.GET("/storage/info", s.handleStorageInfo)
	v1.POST("/storage/reset", s.handleStorageReset)
	v1.POST("/cache/clear", s.handleCacheClear)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}
