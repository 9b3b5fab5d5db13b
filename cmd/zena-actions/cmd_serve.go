// Copyright (C) 2025 Zena Labs (dev@zenahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/zenahq/zena-actions/services/dispatch"
	"github.com/zenahq/zena-actions/services/dispatch/config"
	badgerstore "github.com/zenahq/zena-actions/services/dispatch/storage/badger"
	"github.com/zenahq/zena-actions/services/realty"
	"github.com/zenahq/zena-actions/services/telemetry"
)

func newServeCmd() *cobra.Command {
	var port int
	var dataDir string
	var debug bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dispatch HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.DataDir = dataDir
			}
			if cmd.Flags().Changed("debug") {
				cfg.Debug = debug
			}
			return runServer(cfg)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "Port to listen on")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory for persistent storage (empty = in-memory)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug request logging")
	return cmd
}

func runServer(cfg config.Config) error {
	logger := slog.Default()

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "zena-actions")
	if err != nil {
		logger.Warn("Tracing setup failed, continuing without export",
			slog.String("error", err.Error()))
		shutdownTracing = func(context.Context) error { return nil }
	}

	// Persistence is optional. If the database cannot be opened the engine
	// degrades to in-memory state: dedup and audit survive only the process.
	var db *badgerstore.DB
	if cfg.DataDir != "" {
		dbCfg := badgerstore.DefaultConfig()
		dbCfg.Path = cfg.DataDir
		dbCfg.Logger = logger
		opened, err := badgerstore.OpenDB(dbCfg)
		if err != nil {
			logger.Warn("BadgerDB unavailable, audit trail and dedup window are in-memory only",
				slog.String("path", cfg.DataDir),
				slog.String("error", err.Error()),
			)
		} else {
			db = opened
			logger.Info("BadgerDB opened", slog.String("path", cfg.DataDir))
		}
	}

	svc, err := dispatch.NewService(cfg, dispatch.Deps{
		Logger:   logger,
		DB:       db,
		Store:    realty.NewMemoryStore(),
		Notifier: realty.NewLogNotifier(logger),
	})
	if err != nil {
		return fmt.Errorf("building dispatch service: %w", err)
	}
	svc.StartEviction(ctx)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("zena-actions"))
	if cfg.Debug {
		router.Use(gin.Logger())
	}

	handlers := dispatch.NewHandlers(svc)
	limiter := dispatch.NewUserRateLimiter(cfg.TurnsPerMinute)
	dispatch.RegisterRoutes(router, handlers, limiter)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting Zena dispatch server", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down Zena dispatch server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", slog.String("error", err.Error()))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("Tracing shutdown incomplete", slog.String("error", err.Error()))
	}
	if db != nil {
		if err := db.Close(); err != nil {
			logger.Warn("Failed to close BadgerDB", slog.String("error", err.Error()))
		}
	}
	return nil
}
