package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"merchant-voice-auth/internal/config"
	"merchant-voice-auth/internal/db"
	"merchant-voice-auth/internal/logging"
	"merchant-voice-auth/internal/server"
	"merchant-voice-auth/internal/telemetry"
	telemetryotel "merchant-voice-auth/internal/telemetry/otel"
)

const serviceName = "merchant-voice-auth"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		ServiceName: serviceName,
		Environment: cfg.Env,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("otel", "error", err)
		os.Exit(1)
	}
	providers.SetGlobal()

	deps := server.Deps{Providers: providers}
	if cfg.DatabaseURL != "" {
		pool, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("db", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		deps.Pool = pool
	}

	app, err := server.Build(ctx, cfg, deps, logger)
	if err != nil {
		logger.Error("build", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	workers := make(chan error, 1)
	go func() { workers <- app.Run(ctx) }()
	go func() {
		logger.Info("server listening", "addr", cfg.HTTPAddr, "realtime", cfg.RealtimeMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "error", err)
			stop()
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-workers:
		if err != nil {
			logger.Error("background worker stopped", "error", err)
		}
		stop()
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	// let in-flight async decision events finish
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Error("otel shutdown", "error", err)
	}
}
