package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/brensch/dragonsnek/game"
)

// Recorder streams the snapshots of one game at a time into a parquet file.
//
// Rows go to outDir/tmp while the game runs; Finalize moves the file into
// outDir. Recording a snapshot from a different game finalizes the previous
// one first, so restarts mid-game still leave a complete file behind.
type Recorder struct {
	outDir string
	tmpDir string
	source string
	now    func() time.Time

	gameID  string
	tmpPath string
	outPath string

	file   *os.File
	writer *parquet.GenericWriter[TickRow]

	rows int
}

// NewRecorder prepares outDir for recording. source tags every row
// (e.g. "tui" or "ws").
func NewRecorder(outDir, source string) (*Recorder, error) {
	if outDir == "" {
		return nil, fmt.Errorf("outDir is required")
	}

	absOut, err := filepath.Abs(outDir)
	if err != nil {
		absOut = outDir
	}
	tmpDir := filepath.Join(absOut, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}

	return &Recorder{
		outDir: absOut,
		tmpDir: tmpDir,
		source: source,
		now:    time.Now,
	}, nil
}

func (r *Recorder) GameID() string { return r.gameID }
func (r *Recorder) Rows() int      { return r.rows }
func (r *Recorder) OutDir() string { return r.outDir }

// Record appends one snapshot. Snapshots without a game id are ignored.
func (r *Recorder) Record(s *game.Snapshot) error {
	if s == nil || s.GameID == "" {
		return nil
	}
	if r.writer != nil && s.GameID != r.gameID {
		if _, _, err := r.Finalize(); err != nil {
			return err
		}
	}
	if r.writer == nil {
		if err := r.begin(s.GameID); err != nil {
			return err
		}
	}

	row := RowFromSnapshot(s, r.source, r.now())
	if _, err := r.writer.Write([]TickRow{row}); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	r.rows++
	return nil
}

func (r *Recorder) begin(gameID string) error {
	name := archiveName(gameID)
	tmpPath := filepath.Join(r.tmpDir, name)

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open tmp parquet: %w", err)
	}

	w := parquet.NewGenericWriter[TickRow](
		f,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
	)
	w.SetKeyValueMetadata("schema", SchemaTickV1)

	r.gameID = gameID
	r.tmpPath = tmpPath
	r.outPath = filepath.Join(r.outDir, name)
	r.file = f
	r.writer = w
	r.rows = 0
	return nil
}

// Finalize closes the parquet writer and moves the file from tmp/ to outDir.
// If no rows were written, the tmp file is removed and outPath is empty.
func (r *Recorder) Finalize() (outPath string, rows int, err error) {
	if r.writer == nil && r.file == nil {
		return "", 0, nil
	}

	rows = r.rows
	outPath = r.outPath
	tmpPath := r.tmpPath

	var closeErr error
	if r.writer != nil {
		closeErr = r.writer.Close()
		r.writer = nil
	}
	var fileErr error
	if r.file != nil {
		_ = r.file.Sync()
		fileErr = r.file.Close()
		r.file = nil
	}
	r.gameID = ""
	r.rows = 0

	if closeErr != nil {
		return "", 0, fmt.Errorf("close parquet writer: %w", closeErr)
	}
	if fileErr != nil {
		return "", 0, fmt.Errorf("close parquet file: %w", fileErr)
	}

	if rows == 0 {
		_ = os.Remove(tmpPath)
		return "", 0, nil
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return "", 0, fmt.Errorf("rename parquet: %w", err)
	}
	return outPath, rows, nil
}

// Close finalizes any open game.
func (r *Recorder) Close() error {
	_, _, err := r.Finalize()
	return err
}
