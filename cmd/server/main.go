// Command main is the entry point for the Vibely API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vibely/internal/config"
	"vibely/internal/middleware"
	"vibely/internal/observability"
	"vibely/internal/server"
)

// @title Vibely API
// @version 1.0
// @description Social feed API with posts, comments, likes, direct messaging and image hosting
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@vibely.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8375
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	if err := run(); err != nil {
		middleware.Logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	middleware.Logger = middleware.NewLogger(cfg.Env, cfg.LogLevel, os.Stdout)
	slog.SetDefault(middleware.Logger)

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "vibely-api",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		return err
	}

	stop, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-stop.Done()
		middleware.Logger.Info("shutting down")
		ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		_ = srv.Shutdown(ctx)
		if err := shutdownTracing(ctx); err != nil {
			middleware.Logger.Warn("tracing shutdown", "error", err)
		}
	}()

	return srv.Start()
}
