// Package api provides the HTTP API for starting, inspecting, and
// cancelling test runs and suite runs.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Mathih13/botharness/pkg/coordinator"
)

// Server is the HTTP API server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	runs       *coordinator.RunCoordinator
	suites     *coordinator.SuiteCoordinator
}

// NewServer creates the API server and registers its routes.
func NewServer(runs *coordinator.RunCoordinator, suites *coordinator.SuiteCoordinator) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		router: router,
		runs:   runs,
		suites: suites,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.POST("/runs", s.handleStartRun)
		api.GET("/runs", s.handleListRuns)
		api.GET("/runs/:id", s.handleGetRun)
		api.GET("/runs/:id/report", s.handleRunReport)
		api.POST("/runs/:id/cancel", s.handleCancelRun)

		api.POST("/suites", s.handleStartSuite)
		api.GET("/suites", s.handleListSuites)
		api.GET("/suites/:id", s.handleGetSuite)
		api.GET("/suites/:id/report", s.handleSuiteReport)
		api.POST("/suites/:id/cancel", s.handleCancelSuite)
	}
}

// Start begins serving on the address. Blocks until the listener fails
// or Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("API server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Millisecond))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"active_runs": len(s.runs.ActiveRuns()),
	})
}
