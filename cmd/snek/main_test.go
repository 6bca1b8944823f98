package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/dragonsnek/config"
	"github.com/brensch/dragonsnek/store"
	"github.com/brensch/dragonsnek/tui"
)

func TestOpenStores_CloseArchivesGameInProgress(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{
		GridSize:  20,
		TickRate:  100 * time.Millisecond,
		DataDir:   filepath.Join(dir, "data"),
		ResultLog: filepath.Join(dir, "results.log"),
		Seed:      3,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	opts, closeStores := openStores(cfg, logger)
	if opts.Recorder == nil || opts.Results == nil {
		t.Fatalf("stores not opened: recorder=%v results=%v", opts.Recorder, opts.Results)
	}

	// Play a few ticks and stop without quitting, as when the program fails.
	m := tui.New(opts)
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	for i := 0; i < 3; i++ {
		m.Update(tui.TickMsg(time.Now()))
	}
	if !m.Engine().IsPlaying() {
		t.Fatalf("game should still be running")
	}
	pending, _ := filepath.Glob(filepath.Join(cfg.DataDir, "tmp", "*.parquet"))
	if len(pending) != 1 {
		t.Fatalf("in-progress files=%v", pending)
	}

	closeStores()

	files, _ := filepath.Glob(filepath.Join(cfg.DataDir, "*.parquet"))
	if len(files) != 1 {
		t.Fatalf("archived files=%v", files)
	}
	rows, err := store.ReadGameParquet(files[0])
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if len(rows) != 4 || rows[0].GameID != m.Engine().GameID() || rows[0].Source != "tui" {
		t.Fatalf("rows=%d first=%+v", len(rows), rows[0])
	}
	if pending, _ := filepath.Glob(filepath.Join(cfg.DataDir, "tmp", "*")); len(pending) != 0 {
		t.Fatalf("tmp not empty: %v", pending)
	}

	// The result log was closed too.
	if err := opts.Results.Add(store.Result{GameID: "late", Score: 1}); err == nil {
		t.Fatalf("result log still open after close")
	}
}

func TestOpenStores_NoRecord(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{
		GridSize:  20,
		TickRate:  100 * time.Millisecond,
		DataDir:   filepath.Join(dir, "data"),
		ResultLog: filepath.Join(dir, "results.log"),
		NoRecord:  true,
	}
	opts, closeStores := openStores(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer closeStores()

	if opts.Recorder != nil {
		t.Fatalf("recorder opened with NoRecord set")
	}
	if _, err := os.Stat(cfg.DataDir); !os.IsNotExist(err) {
		t.Fatalf("data dir created with NoRecord set: %v", err)
	}
}
