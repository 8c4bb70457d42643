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

	appconfig "github.com/mvetrova/trailcam/internal/config"
	"github.com/mvetrova/trailcam/internal/database"
	"github.com/mvetrova/trailcam/internal/drives"
	"github.com/mvetrova/trailcam/internal/jobstore"
	"github.com/mvetrova/trailcam/internal/repository"
	"github.com/mvetrova/trailcam/internal/scheduler"
	"github.com/mvetrova/trailcam/internal/server"
	"github.com/mvetrova/trailcam/internal/storage"
	httpapi "github.com/mvetrova/trailcam/internal/transport/http"
	"github.com/mvetrova/trailcam/internal/worker"
	"github.com/mvetrova/trailcam/internal/workers"
	"github.com/mvetrova/trailcam/internal/ws"
)

func main() {
	cfg := appconfig.Load()
	slog.Info("starting trailcam engine", "addr", cfg.HTTPAddr, "data_dir", cfg.DataDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewDB(ctx, cfg.DatabasePath)
	if err != nil {
		slog.Error("failed to open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	mirror, err := storage.NewMirror(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize S3 mirror", "err", err)
		os.Exit(1)
	}
	store, err := storage.NewManager(cfg.DataDir, mirror)
	if err != nil {
		slog.Error("failed to initialize storage", "err", err)
		os.Exit(1)
	}

	repo := repository.New(db)
	slot := worker.NewSlot()
	invoker := worker.NewInvoker(cfg.WorkerPath)
	classifier := drives.NewCached(drives.NewMountClassifier(), 30*time.Second)

	sched := scheduler.New(jobstore.NewSQLiteStore(db), slot, scheduler.Options{
		MaxConcurrent:  cfg.MaxConcurrent,
		MaxHistory:     cfg.MaxHistory,
		RetentionAge:   cfg.RetentionAge,
		RetentionCount: cfg.RetentionCount,
	})
	workers.RegisterAll(sched, repo, store, classifier, invoker, cfg)

	if err := sched.Recover(ctx); err != nil {
		slog.Error("failed to recover persisted jobs", "err", err)
		os.Exit(1)
	}

	wsServer := ws.NewServer()
	sched.RegisterSink(wsServer.Broadcast)

	handlers := &httpapi.Handlers{Sched: sched, Repo: repo, WS: wsServer}
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.NewRouter(handlers),
	}

	go func() {
		slog.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "err", err)
			cancel()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	slot.Terminate()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "err", err)
	}
}
