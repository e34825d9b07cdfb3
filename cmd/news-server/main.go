package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"newsdist/internal/config"
	"newsdist/internal/microservices/audit"
	"newsdist/internal/microservices/http-api/handler"
	"newsdist/internal/microservices/http-api/service"
	"newsdist/internal/microservices/ingest"
	"newsdist/internal/microservices/tcp"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server_error", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("server_stopped_gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var gatherer prometheus.Gatherer
	opts := []tcp.Option{
		tcp.WithLogger(logger),
		tcp.WithHandshakeTimeout(cfg.HandshakeTimeout),
		tcp.WithWriteTimeout(cfg.WriteTimeout),
		tcp.WithMaxPayload(uint32(cfg.MaxPayloadSize)),
		tcp.WithRateLimit(cfg.ClientRateLimit, cfg.ClientRateBurst),
	}
	if cfg.PrometheusEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, tcp.WithMetricsRegisterer(reg))
		gatherer = reg
	}

	server := tcp.NewServer(cfg.TCPAddr(), opts...)
	newsService := service.NewNewsService(server, logger)

	// background workers stop when workerCtx is cancelled, after the TCP server is down
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	var events handler.EventReader
	var recorder *audit.Recorder
	if cfg.DatabaseURL != "" {
		db, err := audit.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		repo := audit.NewRepository(db)
		events = repo
		recorder = audit.NewRecorder(repo, audit.WithLogger(logger))
		server.OnEvent(recorder.Listener())
		go recorder.Run(workerCtx)
		logger.Info("audit_enabled")
	}

	if cfg.RedisURL != "" {
		rdb, err := ingest.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		source := ingest.NewRedisSource(rdb, cfg.RedisNewsChannel, newsService, logger)
		go func() {
			if err := source.Run(workerCtx); err != nil {
				logger.Error("redis_ingest_failed", "error", err.Error())
			}
		}()
	}

	var auth service.AuthService
	if cfg.AdminJWTSecret != "" {
		a, err := service.NewAuthService(cfg.AdminJWTSecret)
		if err != nil {
			return err
		}
		auth = a
	} else {
		logger.Warn("admin_api_unauthenticated", "reason", "ADMIN_JWT_SECRET is empty")
	}

	var httpServer *http.Server
	if addr := cfg.HTTPAddr(); addr != "" {
		if cfg.IsProduction() {
			gin.SetMode(gin.ReleaseMode)
		}
		httpServer = &http.Server{
			Addr: addr,
			Handler: handler.NewRouter(handler.RouterConfig{
				News:     newsService,
				Auth:     auth,
				Events:   events,
				Gatherer: gatherer,
				Logger:   logger,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	if err := server.Listen(); err != nil {
		return err
	}

	errChan := make(chan error, 2)
	go func() {
		if err := server.Serve(); err != nil {
			errChan <- err
		}
	}()
	if httpServer != nil {
		go func() {
			logger.Info("http_api_started", "addr", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received_shutdown_signal")
	case runErr = <-errChan:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http_shutdown_failed", "error", err.Error())
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("tcp_shutdown_failed", "error", err.Error())
	}

	cancelWorkers()
	if recorder != nil {
		select {
		case <-recorder.Done():
		case <-shutdownCtx.Done():
			logger.Warn("audit_flush_timeout")
		}
	}
	return runErr
}
