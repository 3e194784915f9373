package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/pii-gateway/internal/audit"
	"github.com/raaihank/pii-gateway/internal/config"
	"github.com/raaihank/pii-gateway/internal/gateway"
	"github.com/raaihank/pii-gateway/internal/generator"
	"github.com/raaihank/pii-gateway/internal/logger"
	"github.com/raaihank/pii-gateway/internal/privacy"
	"github.com/raaihank/pii-gateway/internal/security"
	"github.com/raaihank/pii-gateway/internal/server"
	"github.com/raaihank/pii-gateway/internal/validator"
	"github.com/raaihank/pii-gateway/internal/websocket"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

const statusInterval = 30 * time.Second

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.String("health-check", "", "Check the /health endpoint at this base URL and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("pii-gateway %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck != "" {
		performHealthCheck(*healthCheck)
		return
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{Enabled: true, Path: cfg.Logging.File.Path}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting PII gateway",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	if err := run(cfg, loader, log); err != nil {
		log.Error("Gateway stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, loader *config.Loader, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry, err := privacy.BuildRegistry(cfg.Privacy)
	if err != nil {
		return fmt.Errorf("building recognizer registry: %w", err)
	}

	var hub *websocket.Hub
	if cfg.WebSocket.Enabled {
		hub = websocket.NewHub(websocket.HubConfigFrom(cfg.WebSocket), log)
		go hub.Run(ctx)
	}

	var auditLog *audit.Logger
	if cfg.Audit.Enabled {
		ledger, err := audit.Open(cfg.Audit, log)
		if err != nil {
			return fmt.Errorf("opening audit ledger: %w", err)
		}
		var failures func(*audit.WriteFailure)
		if hub != nil {
			failures = func(f *audit.WriteFailure) {
				hub.BroadcastEvent(websocket.Event{
					Type: websocket.EventTypeAuditFailure,
					Data: websocket.AuditFailureEvent{
						Backend:       f.Backend,
						Reason:        f.Err.Error(),
						TotalFailures: auditLog.Failures(),
					},
				})
			}
		}
		auditLog = audit.NewLogger(ledger, log, audit.Options{
			QueueSize: cfg.Audit.QueueSize,
			OnFailure: failures,
		})
		defer func() {
			if err := auditLog.Close(); err != nil {
				log.Error("Failed to close audit ledger", zap.Error(err))
			}
		}()
	}

	opts := gateway.Options{
		Registry: registry,
		Validator: validator.New(validator.Config{
			MaxLength:        cfg.Validation.MaxLength,
			ForbiddenPhrases: cfg.Validation.ForbiddenPhrases,
		}),
		Generator:           generator.NewChatClient(cfg.Generator, nil, log),
		Logger:              log,
		Settings:            gateway.Settings{MinScore: cfg.Privacy.MinScore, Categories: cfg.Privacy.Entities},
		Directive:           cfg.Generator.SystemDirective,
		JargonCaseSensitive: cfg.Privacy.Jargon.CaseSensitive,
	}
	if auditLog != nil {
		opts.Audit = auditLog
	}
	if hub != nil {
		opts.Events = hub
	}
	pipeline, err := gateway.New(opts)
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	limiter := security.NewClientLimiter(cfg.Security.RateLimit)
	limiter.StartCleanupRoutine(5*time.Minute, 10*time.Minute, ctx.Done())

	srvOpts := server.Options{
		Config:   cfg,
		Logger:   log,
		Pipeline: pipeline,
		Hub:      hub,
		Limiter:  limiter,
	}
	if auditLog != nil {
		srvOpts.Audit = auditLog
	}
	srv, err := server.New(srvOpts)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	loader.Watch(func(next *config.Config) {
		applyReload(pipeline, next, log)
	}, func(err error) {
		log.Warn("Ignoring invalid configuration change", zap.Error(err))
	})

	if hub != nil {
		go reportStatus(ctx, hub, srv, pipeline, auditLog)
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return err
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))
	}

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	log.Info("Server shutdown complete")
	return nil
}

// applyReload pushes the runtime-adjustable parts of a new configuration
// into the running pipeline. Everything else needs a restart.
func applyReload(p *gateway.Pipeline, cfg *config.Config, log *logger.Logger) {
	if err := p.UpdateSettings(cfg.Privacy.MinScore, cfg.Privacy.Entities); err != nil {
		log.Warn("Failed to apply reloaded detection settings", zap.Error(err))
	}
	p.SetJargonCaseSensitive(cfg.Privacy.Jargon.CaseSensitive)
	if err := p.SetJargon(cfg.Privacy.Jargon.Terms); err != nil {
		log.Warn("Failed to apply reloaded jargon list", zap.Error(err))
	}
	log.Info("Configuration reloaded")
}

func reportStatus(ctx context.Context, hub *websocket.Hub, srv *server.Server, p *gateway.Pipeline, auditLog *audit.Logger) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := websocket.SystemStatusEvent{
				Status:           "healthy",
				Uptime:           srv.Uptime().Round(time.Second).String(),
				Recognizers:      p.Registry().Len(),
				ConnectedClients: int(hub.GetStats().ActiveConnections),
			}
			if auditLog != nil {
				status.AuditBackend = auditLog.Backend()
				status.AuditFailures = auditLog.Failures()
				if status.AuditFailures > 0 {
					status.Status = "degraded"
				}
			}
			hub.BroadcastEvent(websocket.Event{Type: websocket.EventTypeSystemStatus, Data: status})
		}
	}
}

// performHealthCheck performs a health check against the running server
func performHealthCheck(baseURL string) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
}
