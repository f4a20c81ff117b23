// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/arbor/pkg/logging"
	"github.com/AleutianAI/arbor/pkg/ux"
	"github.com/AleutianAI/arbor/services/morpho/cache"
	"github.com/AleutianAI/arbor/services/morpho/server"
	storage "github.com/AleutianAI/arbor/services/morpho/storage/badger"
	"github.com/AleutianAI/arbor/services/morpho/telemetry"
)

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

// runServe starts the morpho HTTP service and blocks until interrupted.
func runServe(cmd *cobra.Command, args []string) {
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	// The service writes its own log stream; the CLI logger is done.
	srvLogger := logging.New(cfg.Logging.ToLogging("morpho"))
	slog.SetDefault(srvLogger.Slog())
	if appLogger != nil {
		appLogger.Close()
		appLogger = nil
	}

	if cfg.Service.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), cfg.Telemetry.ToTelemetry(cfg.Service))
	if err != nil {
		fatalServe(srvLogger, "Telemetry initialization failed", err)
	}

	meter := otel.Meter("morpho")
	metrics, err := telemetry.NewMetrics(meter)
	if err != nil {
		fatalServe(srvLogger, "Metric instrument creation failed", err)
	}

	svc := server.NewService(server.ServiceConfig{
		MaxGraphs:    cfg.Server.MaxGraphs,
		BatchOptions: cfg.Batch.Options(),
	}).
		WithCache(cache.NewResultCache(cfg.Cache.Options()...)).
		WithMetrics(metrics)

	var db *storage.DB
	if cfg.Storage.Enabled {
		db, err = storage.Open(cfg.Storage.ToBadger())
		if err != nil {
			fatalServe(srvLogger, "Result store open failed", err)
		}
		store, err := storage.NewResultStore(db)
		if err != nil {
			db.Close()
			fatalServe(srvLogger, "Result store open failed", err)
		}
		svc = svc.WithStore(store)
	}

	if _, err := metrics.RegisterCacheStats(meter, svc.CacheSnapshot); err != nil {
		slog.Warn("Cache metrics registration failed", "error", err)
	}

	handlers := server.NewHandlers(svc)
	router := server.NewRouter(server.RouterConfig{
		ServiceName:    cfg.Service.Name,
		RateLimitRPS:   cfg.Server.RateLimit,
		RateLimitBurst: cfg.Server.RateBurst,
	}, handlers, metrics)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	go func() {
		slog.Info("Morpho service listening",
			"addr", srv.Addr,
			"environment", cfg.Service.Environment,
			"storage", cfg.Storage.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			srvLogger.Close()
			os.Exit(CLIExitError)
		}
	}()

	if !quietMode {
		ux.Success(fmt.Sprintf("Morpho service listening on %s", cfg.Server.Addr()))
		ux.Muted("Press Ctrl+C to stop")
	}

	// Block until interrupted, then drain in-flight requests.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutdown signal received")
	if !quietMode {
		ux.Info("Shutting down")
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout.Std()
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	exitCode := CLIExitSuccess
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
		exitCode = CLIExitError
	}

	if db != nil {
		if err := db.Close(); err != nil {
			slog.Error("Result store close failed", "error", err)
			exitCode = CLIExitError
		}
	}

	telemetryCtx, cancelTelemetry := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTelemetry()
	if err := shutdownTelemetry(telemetryCtx); err != nil {
		slog.Warn("Telemetry shutdown failed", "error", err)
	}

	slog.Info("Shutdown complete")
	srvLogger.Close()
	os.Exit(exitCode)
}

// fatalServe reports a startup failure and exits.
func fatalServe(l *logging.Logger, msg string, err error) {
	slog.Error(msg, "error", err)
	ux.Error(fmt.Sprintf("%s: %v", msg, err))
	l.Close()
	os.Exit(CLIExitError)
}
