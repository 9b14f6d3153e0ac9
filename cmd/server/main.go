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

	"dietinsights/internal/api"
	"dietinsights/internal/config"
	"dietinsights/internal/engine"
	"dietinsights/internal/export"
	"dietinsights/internal/query"
	"dietinsights/internal/source"
	"dietinsights/internal/watch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := buildSource(ctx, cfg, logger)
	if err != nil {
		logger.Error("dataset source", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 1. Store and query service start empty; queries answer 503 until loaded
	store := engine.NewStore(logger)
	svc := query.NewService(store,
		query.WithCache(query.NewCache(cfg.Cache.MaxEntries)),
		query.WithLogger(logger),
	)
	if cfg.ExportDir != "" {
		store.OnReload(func(snap *engine.Snapshot) {
			paths, err := export.WriteAll(cfg.ExportDir, snap, 5)
			if err != nil {
				logger.Error("export failed", slog.Uint64("version", snap.Version), slog.String("error", err.Error()))
				return
			}
			logger.Info("exported snapshot", slog.Uint64("version", snap.Version), slog.Int("files", len(paths)))
		})
	}

	reload := func(ctx context.Context) (*engine.Snapshot, error) {
		return store.Reload(ctx, src)
	}

	// 2. HTTP is live immediately
	h := api.NewHandler(svc, store, reload, cfg.Watch.MinGap, logger)
	e := api.NewServer(h, logger)

	// 3. Initial load in the background
	go func() {
		logger.Info("loading dataset", slog.String("source", src.Name()))
		t0 := time.Now()
		snap, err := reload(ctx)
		if err != nil {
			logger.Error("initial load failed", slog.String("error", err.Error()))
			return
		}
		logger.Info("dataset ready",
			slog.Uint64("version", snap.Version),
			slog.Int("records", snap.Len()),
			slog.Int("rejected", len(snap.Rejected)),
			slog.Duration("took", time.Since(t0)),
		)
	}()

	// 4. Reload on file change or interval
	if cfg.Watch.Enabled || cfg.Watch.Interval > 0 {
		opts := watch.Options{
			Interval: cfg.Watch.Interval,
			Debounce: cfg.Watch.Debounce,
			MinGap:   cfg.Watch.MinGap,
			Logger:   logger,
		}
		if cfg.Watch.Enabled {
			opts.Path = cfg.Dataset.Path
		}
		w := watch.New(func(ctx context.Context) error {
			_, err := reload(ctx)
			return err
		}, opts)
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("watcher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	go func() {
		logger.Info("server listening", slog.String("addr", cfg.ListenAddr))
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", slog.String("error", err.Error()))
	}
	logger.Info("server stopped")
}

func buildSource(ctx context.Context, cfg config.Config, logger *slog.Logger) (engine.Source, error) {
	local := source.File{Path: cfg.Dataset.Path}
	if !cfg.UsesS3() {
		return local, nil
	}
	remote, err := source.NewS3(ctx, source.S3Config{
		Endpoint:  cfg.Dataset.Endpoint,
		Region:    cfg.Dataset.Region,
		AccessKey: cfg.Dataset.AccessKey,
		SecretKey: cfg.Dataset.SecretKey,
		Bucket:    cfg.Dataset.Bucket,
		Key:       cfg.Dataset.Blob,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Dataset.Path == "" {
		return remote, nil
	}
	return source.Fallback{Primary: remote, Secondary: local, Logger: logger}, nil
}
