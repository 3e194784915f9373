// Package server exposes the redaction pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/pii-gateway/internal/audit"
	"github.com/raaihank/pii-gateway/internal/config"
	"github.com/raaihank/pii-gateway/internal/document"
	"github.com/raaihank/pii-gateway/internal/gateway"
	"github.com/raaihank/pii-gateway/internal/logger"
	"github.com/raaihank/pii-gateway/internal/security"
	"github.com/raaihank/pii-gateway/internal/web"
	"github.com/raaihank/pii-gateway/internal/websocket"
)

const version = "0.1.0"

// AuditSource is the read side of the audit ledger.
type AuditSource interface {
	Summary(ctx context.Context) (audit.Summary, error)
	Backend() string
	Failures() int64
}

// Options wires a Server. Config and Pipeline are required; Audit, Hub and
// Limiter are optional.
type Options struct {
	Config   *config.Config
	Logger   *logger.Logger
	Pipeline *gateway.Pipeline
	Audit    AuditSource
	Hub      *websocket.Hub
	Limiter  *security.ClientLimiter
}

// Server represents the HTTP front end
type Server struct {
	config    *config.Config
	logger    *logger.Logger
	pipeline  *gateway.Pipeline
	audit     AuditSource
	wsHub     *websocket.Hub
	limiter   *security.ClientLimiter
	extractor *document.Extractor
	router    *mux.Router
	server    *http.Server
	startedAt time.Time
}

// New creates a new server instance
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("server: config is required")
	}
	if opts.Pipeline == nil {
		return nil, errors.New("server: pipeline is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	cfg := opts.Config

	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		pipeline:  opts.Pipeline,
		audit:     opts.Audit,
		wsHub:     opts.Hub,
		limiter:   opts.Limiter,
		extractor: document.NewExtractor(cfg.Server.MaxUploadSize),
		router:    mux.NewRouter(),
		startedAt: time.Now(),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	wsPath := ""
	if s.wsHub != nil && s.config.WebSocket.Enabled {
		wsPath = s.config.WebSocket.Path
		s.router.HandleFunc(wsPath, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
	}

	dashboard := web.Dashboard(wsPath)
	s.router.HandleFunc("/", dashboard).Methods(http.MethodGet)
	s.router.HandleFunc("/dashboard", dashboard).Methods(http.MethodGet)

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)

	api.HandleFunc("/process", s.handleProcess).Methods(http.MethodPost)
	api.HandleFunc("/mask", s.handleMask).Methods(http.MethodPost)
	api.HandleFunc("/unmask", s.handleUnmask).Methods(http.MethodPost)
	api.HandleFunc("/documents", s.handleDocument).Methods(http.MethodPost)
	api.HandleFunc("/audit/summary", s.handleAuditSummary).Methods(http.MethodGet)
	api.HandleFunc("/recognizers", s.handleListRecognizers).Methods(http.MethodGet)
	api.HandleFunc("/recognizers/{name}", s.handleRemoveRecognizer).Methods(http.MethodDelete)
	api.HandleFunc("/jargon", s.handleSetJargon).Methods(http.MethodPut)
	api.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.handleUpdateSettings).Methods(http.MethodPut)
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Stop is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("Starting PII gateway server",
		zap.Int("port", s.config.Server.Port),
		zap.String("generator_model", s.config.Generator.Model),
		zap.Int("recognizers", s.pipeline.Registry().Len()),
	)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping PII gateway server")
	return s.server.Shutdown(ctx)
}

// Uptime is the time since the server was created.
func (s *Server) Uptime() time.Duration { return time.Since(s.startedAt) }
