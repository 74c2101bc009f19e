// Package server exposes the latest chart result over HTTP: an HTML report,
// a JSON API, file downloads in every export format and a refresh endpoint
// that reruns the pipeline.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/FranksOps/chartagg/internal/chart"
	"github.com/FranksOps/chartagg/internal/export"
	"github.com/FranksOps/chartagg/internal/metrics"
	"github.com/FranksOps/chartagg/internal/pipeline"
	"github.com/FranksOps/chartagg/internal/report"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Runner produces a fresh result set. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context) (*chart.ResultSet, error)
}

// Option customises a Server.
type Option func(*Server)

// WithMetrics mounts the Prometheus handler at /metrics.
func WithMetrics() Option {
	return func(s *Server) { s.metrics = true }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Server holds the most recent successful result set and serves it.
type Server struct {
	runner  Runner
	logger  *slog.Logger
	metrics bool
	echo    *echo.Echo

	mu     sync.RWMutex
	latest *chart.ResultSet
}

type resultsResponse struct {
	Meta    chart.Meta            `json:"meta"`
	Entries []chart.EnrichedEntry `json:"entries"`
}

// New builds a Server around runner.
func New(runner Runner, opts ...Option) *Server {
	s := &Server{runner: runner}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = s.handleError

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if s.metrics {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}
	s.Register(e.Group(""))
	s.echo = e
	return s
}

// Register mounts the chart routes on g.
func (s *Server) Register(g *echo.Group) {
	g.GET("/", s.index)
	g.GET("/api/results", s.results)
	g.POST("/api/refresh", s.refresh)
	g.GET("/download/:format", s.download)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Latest returns the most recent result set, or nil before the first
// successful run.
func (s *Server) Latest() *chart.ResultSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Refresh runs the pipeline and, on success, replaces the served result.
// A failed run leaves the previous result in place.
func (s *Server) Refresh(ctx context.Context) (*chart.ResultSet, error) {
	if s.runner == nil {
		return nil, errors.New("no pipeline configured")
	}
	rs, err := s.runner.Run(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.latest = rs
	s.mu.Unlock()
	return rs, nil
}

// Start serves on addr until Shutdown is called. It returns nil after a
// clean shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) index(c echo.Context) error {
	rs := s.Latest()
	if rs == nil {
		return c.HTML(http.StatusOK, `<!DOCTYPE html><html><body><p>No chart yet. POST /api/refresh to run the pipeline.</p></body></html>`)
	}
	var buf bytes.Buffer
	if err := report.WriteHTML(&buf, report.GenerateSummary(rs)); err != nil {
		return err
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

func (s *Server) results(c echo.Context) error {
	rs := s.Latest()
	if rs == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no results yet")
	}
	return c.JSON(http.StatusOK, resultsResponse{Meta: rs.Meta(), Entries: rs.Entries()})
}

func (s *Server) refresh(c echo.Context) error {
	// A client hanging up must not abort a run other clients will read.
	ctx := context.WithoutCancel(c.Request().Context())
	start := time.Now()
	rs, err := s.Refresh(ctx)
	if err != nil {
		if errors.Is(err, pipeline.ErrRunInProgress) {
			return echo.NewHTTPError(http.StatusConflict, "a refresh is already running")
		}
		s.logger.Warn("refresh failed", "error", err)
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	s.logger.Info("refresh complete", "run_id", rs.Meta().RunID, "entries", rs.Len(), "duration", time.Since(start))
	return c.JSON(http.StatusOK, resultsResponse{Meta: rs.Meta(), Entries: rs.Entries()})
}

func (s *Server) download(c echo.Context) error {
	f, err := export.ParseFormat(c.Param("format"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rs := s.Latest()
	if rs == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no results yet")
	}
	exp, err := export.For(f)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var buf bytes.Buffer
	if err := exp.Export(c.Request().Context(), &buf, rs); err != nil {
		return fmt.Errorf("export %s: %w", f, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", export.FileName(rs, exp)))
	return c.Blob(http.StatusOK, exp.ContentType(), buf.Bytes())
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := "internal error"
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	} else {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	_ = c.JSON(code, map[string]string{"error": msg})
}
