// Package httpapi provides the HTTP API for reviewd.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/veridocs/reviewd/internal/report"
	"github.com/veridocs/reviewd/internal/session"
	"github.com/veridocs/reviewd/internal/stages"
	"github.com/veridocs/reviewd/internal/store"
)

// ArtifactStore reads stage artifacts for the results endpoint.
type ArtifactStore interface {
	GetJSON(ctx context.Context, sessionID, name string, v any) error
}

// Server provides HTTP endpoints for reviewd.
type Server struct {
	echo      *echo.Echo
	sessions  session.Service
	artifacts ArtifactStore
	logger    *zap.Logger
	addr      string
}

// NewServer creates a new HTTP server.
func NewServer(sessions session.Service, artifacts ArtifactStore, logger *zap.Logger, addr string) (*Server, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session service is required")
	}
	if artifacts == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
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
		sessions:  sessions,
		artifacts: artifacts,
		logger:    logger,
		addr:      addr,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/sessions", s.handleCreateSession)
	v1.GET("/sessions", s.handleListSessions)
	v1.GET("/sessions/:id", s.handleSessionStatus)
	v1.POST("/sessions/:id/advance", s.handleAdvance)
	v1.GET("/sessions/:id/report", s.handleReport)
	v1.GET("/sessions/:id/validation", s.handleValidation)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// CreateSessionRequest is the request body for POST /api/v1/sessions.
type CreateSessionRequest struct {
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AdvanceRequest is the request body for POST /api/v1/sessions/:id/advance.
type AdvanceRequest struct {
	Stage string `json:"stage"`
}

// ListSessionsResponse is the response body for GET /api/v1/sessions.
type ListSessionsResponse struct {
	Sessions []string `json:"sessions"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleCreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	sess, err := s.sessions.Create(c.Request().Context(), req.Metadata)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusCreated, sess)
}

func (s *Server) handleListSessions(c echo.Context) error {
	ids, err := s.sessions.List(c.Request().Context())
	if err != nil {
		return s.mapError(err)
	}
	if ids == nil {
		ids = []string{}
	}
	return c.JSON(http.StatusOK, ListSessionsResponse{Sessions: ids})
}

func (s *Server) handleSessionStatus(c echo.Context) error {
	sess, err := s.sessions.Status(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) handleAdvance(c echo.Context) error {
	var req AdvanceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	stage := session.Stage(req.Stage)
	if !stage.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown stage: %s", req.Stage))
	}

	sess, err := s.sessions.Advance(c.Request().Context(), c.Param("id"), stage)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) handleReport(c echo.Context) error {
	var rep report.Report
	if err := s.artifacts.GetJSON(c.Request().Context(), c.Param("id"), stages.ArtifactReport, &rep); err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, rep)
}

func (s *Server) handleValidation(c echo.Context) error {
	var result map[string]any
	if err := s.artifacts.GetJSON(c.Request().Context(), c.Param("id"), stages.ArtifactValidation, &result); err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// mapError translates domain errors to HTTP status codes.
func (s *Server) mapError(err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrStageOutOfOrder):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.addr))
	return s.echo.Start(s.addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
