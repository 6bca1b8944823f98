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

// SchemaTickV1 is written into the key/value metadata of every archive file.
const SchemaTickV1 = "dragon_tick_v1"

// TickRow is one (game, tick) snapshot.
//
// It is optimized for compression and columnar queries:
// - one row per tick, body stored as parallel coordinate lists
// - optional special food flattened into HasSpecial + coordinates
//
// State is "playing" or "game_over".
type TickRow struct {
	GameID     string `parquet:"game_id,dict"`
	Tick       int32  `parquet:"tick"`
	GridSize   int32  `parquet:"grid_size"`
	RecordedNs int64  `parquet:"recorded_ns"`

	Score int32  `parquet:"score"`
	State string `parquet:"state,dict"`

	HeadX   int32 `parquet:"head_x"`
	HeadZ   int32 `parquet:"head_z"`
	FacingX int32 `parquet:"facing_x"`
	FacingZ int32 `parquet:"facing_z"`

	BodyX []int32 `parquet:"body_x"`
	BodyZ []int32 `parquet:"body_z"`

	HasFood bool  `parquet:"has_food"`
	FoodX   int32 `parquet:"food_x"`
	FoodZ   int32 `parquet:"food_z"`

	HasSpecial       bool    `parquet:"has_special"`
	SpecialX         int32   `parquet:"special_x"`
	SpecialZ         int32   `parquet:"special_z"`
	SpecialRemaining float32 `parquet:"special_remaining"`

	Source string `parquet:"source,dict"`
}

const (
	StatePlaying  = "playing"
	StateGameOver = "game_over"
)

// RowFromSnapshot flattens a snapshot into an archive row.
func RowFromSnapshot(s *game.Snapshot, source string, at time.Time) TickRow {
	row := TickRow{
		GameID:     s.GameID,
		Tick:       s.Tick,
		GridSize:   s.GridSize,
		RecordedNs: at.UnixNano(),
		Score:      int32(s.Score),
		State:      StatePlaying,
		HeadX:      s.Head.X,
		HeadZ:      s.Head.Z,
		FacingX:    s.Facing.X,
		FacingZ:    s.Facing.Z,
		BodyX:      make([]int32, len(s.Body)),
		BodyZ:      make([]int32, len(s.Body)),
		Source:     source,
	}
	if s.Over {
		row.State = StateGameOver
	}
	for i, p := range s.Body {
		row.BodyX[i] = p.X
		row.BodyZ[i] = p.Z
	}
	if s.NormalFood != nil {
		row.HasFood = true
		row.FoodX = s.NormalFood.X
		row.FoodZ = s.NormalFood.Z
	}
	if s.Special != nil {
		row.HasSpecial = true
		row.SpecialX = s.Special.Pos.X
		row.SpecialZ = s.Special.Pos.Z
		row.SpecialRemaining = float32(s.Special.Remaining)
	}
	return row
}

// Body zips the coordinate lists back into points.
func (r TickRow) Body() []game.Point {
	n := len(r.BodyX)
	if len(r.BodyZ) < n {
		n = len(r.BodyZ)
	}
	out := make([]game.Point, n)
	for i := 0; i < n; i++ {
		out[i] = game.Point{X: r.BodyX[i], Z: r.BodyZ[i]}
	}
	return out
}

// WriteGameParquetAtomic writes rows into outDir/tmp and then atomically
// moves the file into outDir, so readers never observe partial files.
// The returned path is the final parquet file path.
func WriteGameParquetAtomic(outDir string, rows []TickRow) (string, error) {
	if len(rows) == 0 {
		return "", fmt.Errorf("no rows to write")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := archiveName(rows[0].GameID)
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", SchemaTickV1),
	); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}

	return finalPath, nil
}

// ReadGameParquet loads every row of an archive file.
func ReadGameParquet(path string) ([]TickRow, error) {
	rows, err := parquet.ReadFile[TickRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet: %w", err)
	}
	return rows, nil
}

func archiveName(gameID string) string {
	if gameID == "" {
		gameID = "game"
	}
	return fmt.Sprintf("%s_%d.parquet", gameID, time.Now().UnixNano())
}
