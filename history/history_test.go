package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brensch/dragonsnek/game"
	"github.com/brensch/dragonsnek/store"
)

func TestEscapeSQLString(t *testing.T) {
	if got := escapeSQLString("it's/a'path"); got != "it''s/a''path" {
		t.Fatalf("escape=%q", got)
	}
	sqlText := viewSQL([]string{"/data/o'brien.parquet"})
	if !strings.Contains(sqlText, "'/data/o''brien.parquet'") {
		t.Fatalf("view sql does not escape paths: %s", sqlText)
	}
	if !strings.Contains(viewSQL(nil), "WHERE 1=0") {
		t.Fatalf("empty view should select nothing")
	}
}

func TestFindParquetFiles_SkipsTmp(t *testing.T) {
	root := t.TempDir()
	mustWrite := func(rel string) {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	mustWrite("a.parquet")
	mustWrite("nested/b.PARQUET")
	mustWrite("tmp/partial.parquet")
	mustWrite("notes.txt")

	files, err := findParquetFilesMulti([]string{root, root, filepath.Join(root, "missing")})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	sort.Strings(files)
	if len(files) != 2 {
		t.Fatalf("files=%v", files)
	}
	if filepath.Base(files[0]) != "a.parquet" || filepath.Base(files[1]) != "b.PARQUET" {
		t.Fatalf("files=%v", files)
	}
	if rel := makeRelativeToRoots(files[1], []string{root}); rel != "nested/b.PARQUET" {
		t.Fatalf("relative=%q", rel)
	}
}

func TestHelpers_ListConversion(t *testing.T) {
	got := zipPoints(asInt32Slice([]any{int32(1), int64(2), 3.0}), asInt32Slice([]int64{-1, -2}))
	if len(got) != 2 || got[0] != (Point{X: 1, Z: -1}) || got[1] != (Point{X: 2, Z: -2}) {
		t.Fatalf("points=%v", got)
	}
	if asInt32Slice("nope") != nil {
		t.Fatalf("unexpected conversion of string")
	}
	if clampLimit(0, 50) != 50 || clampLimit(500, 50) != 50 || clampLimit(7, 50) != 7 {
		t.Fatalf("clampLimit wrong")
	}
}

func writeGame(t *testing.T, dir, gameID string, scores []int) {
	t.Helper()
	var rows []store.TickRow
	for i, score := range scores {
		food := game.Point{X: 3, Z: 3}
		s := &game.Snapshot{
			GameID:     gameID,
			Tick:       int32(i),
			GridSize:   game.DefaultGridSize,
			Head:       game.Point{X: int32(i)},
			Facing:     game.Right,
			Body:       []game.Point{{X: int32(i) - 1}, {X: int32(i) - 2}},
			NormalFood: &food,
			Score:      score,
			Playing:    i < len(scores)-1,
			Over:       i == len(scores)-1,
		}
		rows = append(rows, store.RowFromSnapshot(s, "test", time.Unix(int64(len(gameID)), int64(i))))
	}
	if _, err := store.WriteGameParquetAtomic(dir, rows); err != nil {
		t.Fatalf("write %s: %v", gameID, err)
	}
}

func TestArchive_TopGamesAndTicks(t *testing.T) {
	dir := t.TempDir()
	a := NewArchive([]string{dir}, time.Hour, nil)
	defer a.Close()

	empty, err := a.TopGames(context.Background(), 10)
	if err != nil {
		t.Fatalf("top games on empty archive: %v", err)
	}
	if empty.Total != 0 || len(empty.Games) != 0 {
		t.Fatalf("empty archive=%+v", empty)
	}

	writeGame(t, dir, "low", []int{0, 10})
	writeGame(t, dir, "high", []int{0, 10, 20, 40})
	writeGame(t, dir, "mid", []int{0, 20, 20})
	if err := a.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	resp, err := a.TopGames(context.Background(), 2)
	if err != nil {
		t.Fatalf("top games: %v", err)
	}
	if resp.Total != 3 || len(resp.Games) != 2 {
		t.Fatalf("resp=%+v", resp)
	}
	best := resp.Games[0]
	if best.GameID != "high" || best.Score != 40 || best.MaxTick != 3 || best.TickCount != 4 || !best.Finished {
		t.Fatalf("best=%+v", best)
	}
	if best.MaxLength != 3 || best.Source != "test" {
		t.Fatalf("best=%+v", best)
	}
	if resp.Games[1].GameID != "mid" {
		t.Fatalf("second=%+v", resp.Games[1])
	}
	if strings.Contains(best.SourceFile, dir) {
		t.Fatalf("file should be relative to root, got %q", best.SourceFile)
	}

	ticks, err := a.GameTicks(context.Background(), "mid")
	if err != nil {
		t.Fatalf("ticks: %v", err)
	}
	if len(ticks) != 3 || ticks[2].Score != 20 || ticks[2].State != store.StateGameOver {
		t.Fatalf("ticks=%+v", ticks)
	}
	if len(ticks[1].Body) != 2 || ticks[1].Body[0] != (Point{X: 0}) || ticks[1].Food == nil || ticks[1].Special != nil {
		t.Fatalf("tick 1=%+v", ticks[1])
	}

	if _, err := a.GameTicks(context.Background(), "nope"); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}

func TestArchive_RefreshDuringQueries(t *testing.T) {
	dir := t.TempDir()
	for _, id := range []string{"a", "bb", "ccc", "dddd"} {
		writeGame(t, dir, id, []int{0, 10, 20})
	}
	a := NewArchive([]string{dir}, time.Hour, nil)
	defer a.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 8*30)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 30; i++ {
				if err := a.Refresh(); err != nil {
					errs <- err
					continue
				}
				resp, err := a.TopGames(context.Background(), 10)
				if err != nil {
					errs <- err
					continue
				}
				if resp.Total != 4 {
					t.Errorf("total=%d want 4", resp.Total)
				}
				if _, err := a.GameTicks(context.Background(), "ccc"); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	failed := 0
	var first error
	for err := range errs {
		if first == nil {
			first = err
		}
		failed++
	}
	if failed > 0 {
		t.Fatalf("%d concurrent queries failed; first: %v", failed, first)
	}
}
