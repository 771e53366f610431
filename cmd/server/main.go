package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/exp/slog"

	"github.com/mammuth/gravity-tasks/internal/app/server/api"
	"github.com/mammuth/gravity-tasks/internal/app/server/changefeed"
	"github.com/mammuth/gravity-tasks/internal/app/server/config"
	"github.com/mammuth/gravity-tasks/internal/domain/sync"
	"github.com/mammuth/gravity-tasks/internal/infrastructure/storage/memory"
	"github.com/mammuth/gravity-tasks/internal/infrastructure/storage/postgres"
	"github.com/mammuth/gravity-tasks/internal/utils/logger"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	deps := api.Deps{JWTSecret: cfg.Auth.JWTSecret, Log: log}

	var repo sync.Repository
	switch cfg.Storage {
	case config.StoragePostgres:
		storage, err := postgres.New(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := storage.Close(); err != nil {
				log.Error("failed to close storage", slog.String("error", err.Error()))
			}
		}()
		repo = postgres.NewSyncRepository(storage.DB(), log)
		deps.Storage = storage
	default:
		log.Warn("using in-memory storage, data will be lost on restart")
		repo = memory.New()
	}

	deps.Hub = changefeed.NewHub(log)
	deps.Service = sync.NewService(repo, log, &sync.ServiceConfig{
		MaxBatchSize:    cfg.Sync.MaxBatchSize,
		MaxApplyRetries: cfg.Sync.ApplyMaxRetries,
		Notifier:        deps.Hub,
	})

	srv := &http.Server{
		Addr:    cfg.Server.RunAddress,
		Handler: api.New(deps),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server",
			slog.String("address", cfg.Server.RunAddress),
			slog.String("storage", cfg.Storage),
			slog.String("env", cfg.Env),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
