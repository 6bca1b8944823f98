package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/dragonsnek/config"
	"github.com/brensch/dragonsnek/logging"
	"github.com/brensch/dragonsnek/store"
	"github.com/brensch/dragonsnek/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run returns instead of exiting so the deferred closes archive the game in
// progress.
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

	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	logger, err := logging.New(f, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	opts, closeStores := openStores(cfg, logger)
	defer closeStores()

	logger.Info("starting",
		"grid", cfg.GridSize,
		"tick", cfg.TickRate,
		"data_dir", cfg.DataDir,
		"result_log", cfg.ResultLog,
		"record", !cfg.NoRecord,
	)

	p := tea.NewProgram(tui.New(opts), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		logger.Error("program failed", "err", err)
		return fmt.Errorf("run program: %w", err)
	}

	if opts.Results != nil {
		if best, ok := opts.Results.Best(); ok {
			fmt.Printf("High score: %d\n", best.Score)
		}
	}
	return nil
}

// openStores builds the game options with whichever stores could be opened.
// Stores that fail to open are logged and left out. closeStores finalizes the
// recording in progress and closes the result log.
func openStores(cfg config.Config, logger *slog.Logger) (opts tui.Options, closeStores func()) {
	opts = tui.Options{
		Settings: cfg.RuleSettings(),
		Rand:     rand.New(rand.NewSource(cfg.RandSeed())),
		Logger:   logger,
	}

	results, err := store.OpenResultLog(cfg.ResultLog)
	if err != nil {
		logger.Warn("result log unavailable; high scores will not be kept", "path", cfg.ResultLog, "err", err)
	} else {
		opts.Results = results
	}

	if !cfg.NoRecord {
		rec, err := store.NewRecorder(cfg.DataDir, "tui")
		if err != nil {
			logger.Warn("recorder unavailable; games will not be archived", "dir", cfg.DataDir, "err", err)
		} else {
			opts.Recorder = rec
		}
	}

	return opts, func() {
		if opts.Recorder != nil {
			if err := opts.Recorder.Close(); err != nil {
				logger.Error("close recorder failed", "err", err)
			}
		}
		if opts.Results != nil {
			if err := opts.Results.Close(); err != nil {
				logger.Error("close result log failed", "err", err)
			}
		}
	}
}
