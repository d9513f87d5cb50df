package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pamana/notes/internal/config"
	"pamana/notes/internal/devserver"
	"pamana/notes/internal/logging"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logging.New("info", "text", nil).Error("load .env failed", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repo devserver.Repository
	if cfg.DatabaseURL != "" {
		pg, err := devserver.NewPostgresRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("db connection failed", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		repo = pg
		logger.Info("using postgres repository")
	} else {
		repo = devserver.NewMemoryRepository()
		logger.Info("using in-memory repository")
	}

	if cfg.SeedDemo {
		if err := devserver.Seed(ctx, repo, logger); err != nil {
			logger.Error("seed failed", "error", err)
			os.Exit(1)
		}
	}

	server := devserver.NewServer(cfg, repo, devserver.WithLogger(logger))
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("notes backend listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	server.Close()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
