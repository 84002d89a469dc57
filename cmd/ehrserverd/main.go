// Copyright 2026 Blaqmann
// SPDX-License-Identifier: Apache-2.0

// ehrserverd runs the authoritative record store HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Blaqmann/ehr-system/ehrstore"
	"github.com/Blaqmann/ehr-system/internal/config"
	"github.com/Blaqmann/ehr-system/internal/logging"
)

func main() {
	cfg := config.LoadServer()
	logger := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create connection pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	service, err := ehrstore.NewService(ctx, pool, logger)
	if err != nil {
		logger.Error("failed to initialize store service", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := ehrstore.NewMetrics(registry)

	jwtAuth := ehrstore.NewJWTAuth(cfg.JWTSecret)
	if cfg.JWTSecret == "dev-secret-change-in-production" {
		if token, err := jwtAuth.GenerateToken("dev-user", "admin", cfg.TokenExpiry); err == nil {
			logger.Warn("running with the development JWT secret", "dev_token", token)
		}
	}
	handlers := ehrstore.NewHTTPHandlers(service, jwtAuth, logger, metrics)

	router := chi.NewRouter()
	router.Mount("/", handlers.Routes())
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("ehrserverd listening", "addr", cfg.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("ehrserverd stopped")
}
