// Package http exposes the memory engine over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/memoryd/internal/logging"
	"github.com/fyrsmithlabs/memoryd/internal/memory"
	"github.com/fyrsmithlabs/memoryd/internal/store"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies; ingest batches carry embeddings.
const maxBodyBytes = "32M"

// Engine is the memory engine surface served over HTTP.
type Engine interface {
	Health() memory.Health
	Ingest(ctx context.Context, req memory.IngestRequest) (memory.IngestCounts, error)
	Query(ctx context.Context, req memory.QueryRequest) (*memory.QueryResponse, error)
	Recall(ctx context.Context, req memory.RecallRequest) (*memory.RecallResponse, error)
	SummarizeSession(ctx context.Context, req memory.SummarizeRequest) (*memory.SummarizeResult, error)
	CreateNamespace(ctx context.Context, name string) (*store.Namespace, error)
	Backfill(ctx context.Context, req memory.BackfillRequest) (*memory.BackfillResult, error)
}

// Server provides HTTP endpoints for memoryd.
type Server struct {
	echo     *echo.Echo
	engine   Engine
	logger   *zap.Logger
	config   *Config
	metrics  *HTTPMetrics
	gatherer prometheus.Gatherer
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves g on GET /metrics instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithHTTPMetrics records request metrics through m.
func WithHTTPMetrics(m *HTTPMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a new HTTP server.
func NewServer(engine Engine, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "0.0.0.0",
			Port: 8088,
		}
	}

	s := &Server{
		engine:   engine,
		logger:   logger,
		config:   cfg,
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(maxBodyBytes))
	if s.metrics != nil {
		e.Use(s.metrics.MetricsMiddleware())
	}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), requestID)))

			err := next(c)
			if err != nil {
				// Resolve the status before logging it.
				c.Error(err)
			}

			logging.For(c.Request().Context(), logger).Info("http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	})
	s.echo = e
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	s.echo.POST("/ingest", s.handleIngest)
	s.echo.GET("/query", s.handleQuery)
	s.echo.POST("/recall", s.handleRecall)
	s.echo.POST("/summarize_clear", s.handleSummarize)

	admin := s.echo.Group("/admin")
	admin.POST("/namespaces", s.handleCreateNamespace)
	admin.POST("/backfill-embeddings", s.handleBackfill)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Health())
}

func (s *Server) handleIngest(c echo.Context) error {
	var req memory.IngestRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	counts, err := s.engine.Ingest(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, IngestResponse{
		Namespace: namespaceOrDefault(req.Namespace),
		Counts:    counts,
	})
}

func (s *Server) handleQuery(c echo.Context) error {
	var p queryParams
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &p); err != nil {
		return badRequest(err)
	}
	resp, err := s.engine.Query(c.Request().Context(), memory.QueryRequest{
		Namespace:   p.Namespace,
		Text:        p.Q,
		ProjectSlug: p.ProjectSlug,
		EntitySlug:  p.EntitySlug,
		Limit:       p.Limit,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRecall(c echo.Context) error {
	var req memory.RecallRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	resp, err := s.engine.Recall(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSummarize(c echo.Context) error {
	var req memory.SummarizeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	res, err := s.engine.SummarizeSession(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleCreateNamespace(c echo.Context) error {
	var req NamespaceRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	ns, err := s.engine.CreateNamespace(c.Request().Context(), req.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ns)
}

func (s *Server) handleBackfill(c echo.Context) error {
	var req memory.BackfillRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	res, err := s.engine.Backfill(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// handleError renders engine errors by kind and echo errors by their code.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := http.StatusInternalServerError, ErrorResponse{Error: "internal server error"}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		body = ErrorResponse{Error: fmt.Sprint(he.Message)}
	} else {
		kind := memory.Classify(err)
		status = statusFor(kind)
		body.Kind = string(kind)
		s.metrics.RecordFailure(c.Request().Context(), c.Path(), kind)
		if status != http.StatusInternalServerError {
			body.Error = err.Error()
		} else {
			logging.For(c.Request().Context(), s.logger).Error("request failed", zap.Error(err), zap.String("uri", c.Request().RequestURI))
		}
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		logging.For(c.Request().Context(), s.logger).Warn("writing error response", zap.Error(err))
	}
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(kind memory.Kind) int {
	switch kind {
	case memory.KindNotFound:
		return http.StatusNotFound
	case memory.KindValidation, memory.KindProvider:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(err error) error {
	return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
}

func namespaceOrDefault(ns string) string {
	if ns = strings.TrimSpace(ns); ns == "" {
		return memory.DefaultNamespace
	}
	return ns
}

// Handler returns the server's request handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
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
