// Package app assembles the data service: configuration, logging, storage
// gateway, disk cache, data access client and the HTTP server, with graceful
// shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"quantdl/internal/cache"
	"quantdl/internal/config"
	"quantdl/internal/dataaccess"
	"quantdl/internal/infrastructure"
	"quantdl/internal/middleware"
	"quantdl/internal/storage"
	transport "quantdl/internal/transport/http"
)

// Application owns the assembled service.
type Application struct {
	cfg    *config.Config
	logger *slog.Logger
	client *dataaccess.Client
	server *http.Server
}

// NewApplication builds the full service from configuration. configPath may
// be empty to use the default config file location.
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	gateway, err := BuildGateway(context.Background(), cfg.Storage, logger)
	if err != nil {
		return nil, err
	}

	diskCache, err := cache.New(cfg.Cache.Dir, cfg.Cache.TTL, cfg.Cache.MaxSizeBytes, logger)
	if err != nil {
		return nil, fmt.Errorf("open disk cache: %w", err)
	}

	client := dataaccess.New(gateway, diskCache, logger)

	handler := transport.NewHandler(client, logger, cfg.Session.ChunkSize, cfg.Session.MaxConcurrency)
	router := buildRouter(cfg, logger, handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Application{
		cfg:    cfg,
		logger: logger,
		client: client,
		server: server,
	}, nil
}

// BuildGateway constructs the configured storage backend wrapped with retry
// and rate limiting.
func BuildGateway(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (storage.Gateway, error) {
	var gw storage.Gateway
	switch cfg.Backend {
	case "local":
		gw = storage.NewLocalGateway(cfg.LocalPath)
	default:
		s3gw, err := storage.NewS3Gateway(ctx, storage.S3Options{
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("build s3 gateway: %w", err)
		}
		gw = s3gw
	}
	gw = storage.NewRetryGateway(gw, storage.DefaultRetryOptions(), logger)
	if cfg.RateRPS > 0 {
		gw = storage.NewRateLimitedGateway(gw, cfg.RateRPS, cfg.RateBurst)
	}
	return gw, nil
}

func buildRouter(cfg *config.Config, logger *slog.Logger, handler *transport.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))
	if cfg.Server.RateRPS > 0 {
		r.Use(middleware.NewRateLimiter(cfg.Server.RateRPS, cfg.Server.RateBurst, logger).Handler)
	}
	r.Mount("/api", handler.Routes())
	return r
}

// Client exposes the assembled data access client for embedding callers.
func (a *Application) Client() *dataaccess.Client { return a.client }

// Run starts the HTTP server and blocks until SIGINT/SIGTERM, then shuts
// down gracefully.
func (a *Application) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		a.logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := infrastructure.CloseLogFile(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}
