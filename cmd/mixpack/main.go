package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwygoda/mixpack/internal/adapter/acquirer"
	"github.com/cwygoda/mixpack/internal/adapter/archive"
	httpAdapter "github.com/cwygoda/mixpack/internal/adapter/http"
	"github.com/cwygoda/mixpack/internal/adapter/tracker"
	"github.com/cwygoda/mixpack/internal/config"
	"github.com/cwygoda/mixpack/internal/domain"
	"github.com/cwygoda/mixpack/internal/log"
	"github.com/cwygoda/mixpack/internal/sweeper"
	"github.com/cwygoda/mixpack/internal/workspace"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "mixpack: %v\n", err)
		os.Exit(2)
	}

	logger := log.Setup(cfg.LogLevel)
	logger.Info("starting mixpack",
		"port", cfg.Port,
		"tracker_url", cfg.TrackerURL,
		"work_dir", cfg.WorkDir,
		"archive_dir", cfg.ArchiveDir,
		"config", cfg.ConfigPath,
	)

	if err := run(cfg); err != nil {
		logger.Error("mixpack stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger := log.Get()

	client, err := tracker.NewClient(cfg.TrackerURL, tracker.Options{
		FetchTimeout:  cfg.FetchTimeout.Duration,
		StatusTimeout: cfg.StatusTimeout.Duration,
	}, log.WithComponent("tracker"))
	if err != nil {
		return err
	}

	registry, err := acquirer.FromConfig(cfg.Acquirers, log.WithComponent("acquirer"))
	if err != nil {
		return err
	}
	for _, s := range registry.Sources() {
		logger.Info("acquirer registered", "name", s.Name())
	}

	workspaces, err := workspace.NewFSManager(cfg.WorkDir)
	if err != nil {
		return err
	}
	// Nothing is in flight yet, so every workspace on disk belongs to a
	// previous process that was stopped mid-run.
	if report, err := workspaces.Purge(context.Background()); err != nil {
		logger.Warn("failed to purge leftover workspaces", "error", err)
	} else if report.DeletedDirs > 0 {
		logger.Info("purged leftover workspaces", "deleted", report.DeletedDirs)
	}
	store, err := archive.NewStore(cfg.ArchiveDir, log.WithComponent("archive"))
	if err != nil {
		return err
	}

	pipeline := domain.NewPipeline(domain.Deps{
		Source:     client,
		Reporter:   client,
		Acquirer:   registry,
		Archiver:   archive.NewBuilder(log.WithComponent("archive")),
		Store:      store,
		Workspaces: workspaces,
		Logger:     log.WithComponent("pipeline"),
	}, domain.PipelineOptions{
		DownloadURLTemplate: cfg.DownloadURLTemplate,
		MaxConcurrent:       cfg.MaxConcurrent,
	})

	srv := httpAdapter.NewServer(pipeline, fmt.Sprintf(":%d", cfg.Port), httpAdapter.Options{
		WriteTimeout: cfg.WriteTimeout.Duration,
	}, log.WithComponent("http"))

	sw := sweeper.New(store, workspaces, sweeper.Config{
		Interval:     cfg.SweepInterval.Duration,
		ArchiveTTL:   cfg.ArchiveTTL.Duration,
		WorkspaceTTL: cfg.WorkspaceTTL.Duration,
	}, log.WithComponent("sweeper"))

	// Graceful shutdown setup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sw.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
