// Command server is the entry point for the slot swap backend.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slotswap/internal/config"
	"slotswap/internal/database"
	"slotswap/internal/middleware"
	"slotswap/internal/observability"
	"slotswap/internal/server"
)

// @title Slot Swap API
// @version 1.0
// @description Course slot swap board: post held and wanted faculty slots, find reciprocal matches and exchange contact details
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@slotswap.dev

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
	cfg, err := config.LoadConfig()
	if err != nil {
		fatal("failed to load configuration", err)
	}

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "slotswap-api",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSamplerRatio,
	})
	if err != nil {
		fatal("failed to initialize tracing", err)
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		fatal("failed to create server", err)
	}

	if err := database.ApplySchema(database.DB, cfg); err != nil {
		fatal("failed to apply database schema", err)
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		middleware.Logger.Info("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			middleware.Logger.Error("server shutdown error", slog.String("error", err.Error()))
		}
		if err := shutdownTracing(ctx); err != nil {
			middleware.Logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		}
	}()

	if err := srv.Start(); err != nil {
		fatal("server stopped", err)
	}
}

func fatal(msg string, err error) {
	middleware.Logger.Error(msg, slog.String("error", err.Error()))
	os.Exit(1)
}
