package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/S1riyS/memfs9p/server/internal/config"
	"github.com/S1riyS/memfs9p/server/internal/handler"
	"github.com/S1riyS/memfs9p/server/internal/metrics"
	"github.com/S1riyS/memfs9p/server/internal/middleware"
	"github.com/S1riyS/memfs9p/server/internal/service"
	"github.com/S1riyS/memfs9p/server/pkg/logging"
	"github.com/S1riyS/memfs9p/server/pkg/logging/slogext"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	cfg := config.MustLoad(configPath())

	logger := logging.NewLogger(os.Stdout, cfg.Logger.Level, cfg.Logger.Pretty)

	// Root context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.MakeContextWithLogger(ctx, logger)

	// Dependencies
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	registry := service.NewRegistry(cfg.Filesystem.MaxInstances)
	fsService := service.NewFileSystemService(registry, m, cfg.Filesystem.Msize)
	h := handler.NewHandler(fsService)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, m.Handler())
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      middleware.RequestIDMiddleware(middleware.AccessMiddleware(m)(mux)),
		ReadTimeout:  cfg.App.DefaultTimeout,
		WriteTimeout: cfg.App.DefaultTimeout,
		BaseContext: func(net.Listener) context.Context {
			return logging.MakeContextWithLogger(context.Background(), logger)
		},
	}

	go func() {
		logger.Info("Starting server",
			slog.Int("port", cfg.App.Port),
			slog.Int("max_instances", cfg.Filesystem.MaxInstances),
			slog.Int("msize", cfg.Filesystem.Msize),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", slogext.Err(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", slogext.Err(err))
		os.Exit(1)
	}

	logger.Info("Server stopped")
}

// configPath resolves the config location from the -config flag, then CONFIG_PATH.
func configPath() string {
	path := flag.String("config", "", "path to the config file")
	flag.Parse()

	if *path != "" {
		return *path
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return defaultConfigPath
}
