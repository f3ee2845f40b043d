package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/conorfennell/kotoba/internal/config"
	"github.com/conorfennell/kotoba/internal/decksync"
	"github.com/conorfennell/kotoba/internal/diversity"
	"github.com/conorfennell/kotoba/internal/domain"
	"github.com/conorfennell/kotoba/internal/logging"
	"github.com/conorfennell/kotoba/internal/metrics"
	"github.com/conorfennell/kotoba/internal/storage"
	"github.com/conorfennell/kotoba/internal/web"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "kotoba:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	logger, err := logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("database opened", "driver", cfg.DB.Driver)

	m := metrics.New()
	syncer := decksync.New(db, cfg.Sync.ReposDir, m)

	switch {
	case cfg.AddSource != "":
		return addSource(ctx, db, cfg)
	case cfg.SyncOnce:
		_, err := syncer.RunSync(ctx)
		return err
	}

	tracker := diversity.NewTracker(diversity.Config{
		WindowSize: cfg.Diversity.WindowSize,
		MinSamples: cfg.Diversity.MinSamples,
		WarnBelow:  cfg.Diversity.WarnBelow,
		NoteBelow:  cfg.Diversity.NoteBelow,
	})

	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: web.NewServer(web.Deps{
			DB:      db,
			Tracker: tracker,
			Syncer:  syncer,
			Metrics: m,
			Logger:  logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Sync.Interval > 0 {
		go syncPeriodically(ctx, syncer, cfg.Sync.Interval)
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.HTTP.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.HTTP.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func syncPeriodically(ctx context.Context, syncer *decksync.Syncer, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := syncer.RunSync(ctx); err != nil {
				slog.Error("periodic sync failed", "error", err)
			}
		}
	}
}

// addSource registers a local directory or git URL for cfg.Learner.
func addSource(ctx context.Context, db *storage.DB, cfg *config.Config) error {
	src := domain.Source{
		LearnerID: cfg.Learner,
		Path:      cfg.AddSource,
		Type:      decksync.TypeOf(cfg.AddSource),
	}

	if src.Type == domain.SourceLocal {
		abs, err := filepath.Abs(src.Path)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", src.Path, err)
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			return fmt.Errorf("source %s is not a directory", abs)
		}
		src.Path = abs
	}

	if cfg.Deck != "" {
		deck, err := db.EnsureDeck(ctx, cfg.Learner, cfg.Deck)
		if err != nil {
			return err
		}
		src.DeckID = deck.ID
	}

	id, err := db.InsertSource(ctx, src)
	if err != nil {
		return err
	}
	slog.Info("source added", "id", id, "type", src.Type, "path", src.Path)
	return nil
}
