package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brensch/dragonsnek/config"
	"github.com/brensch/dragonsnek/history"
	"github.com/brensch/dragonsnek/logging"
	"github.com/brensch/dragonsnek/server"
	"github.com/brensch/dragonsnek/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()

	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	cfg.RegisterFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("flag parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	results, err := store.OpenResultLog(cfg.ResultLog)
	if err != nil {
		return fmt.Errorf("open result log: %w", err)
	}
	defer results.Close()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	archive := history.NewArchive([]string{cfg.DataDir}, cfg.ArchiveRefresh, logger)
	defer archive.Close()

	opts := server.Options{
		Settings:       cfg.RuleSettings(),
		Seed:           cfg.Seed,
		Results:        results,
		Archive:        archive,
		LeaderboardMax: cfg.LeaderboardMaxRows,
		Logger:         logger,
	}
	if !cfg.NoRecord {
		opts.DataDir = cfg.DataDir
	}
	srv := server.New(opts)

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			"addr", cfg.Listen,
			"grid", cfg.GridSize,
			"tick", cfg.TickRate,
			"data_dir", cfg.DataDir,
			"games_logged", results.Count(),
		)
		errCh <- httpSrv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			serveErr = fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	srv.Close()
	logger.Info("shutdown complete")
	return serveErr
}
