// Package history queries the parquet game archive through DuckDB.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

// MaxLimit caps leaderboard queries.
const MaxLimit = 1000

// Archive keeps a DuckDB view over every finished game under roots and
// rebuilds it when it is older than refreshRate, so newly archived games
// show up without a restart.
type Archive struct {
	roots       []string
	refreshRate time.Duration
	logger      *slog.Logger

	mu          sync.RWMutex
	db          *sql.DB
	files       int
	lastRefresh time.Time
}

func NewArchive(roots []string, refreshRate time.Duration, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{
		roots:       roots,
		refreshRate: refreshRate,
		logger:      logger,
	}
}

// acquire returns the view with the read lock held, rebuilding it first when
// it is stale. Callers must call release once their rows are scanned; a
// Refresh or Close waits for them.
func (a *Archive) acquire() (db *sql.DB, release func(), err error) {
	a.mu.RLock()
	if a.db != nil && time.Since(a.lastRefresh) < a.refreshRate {
		return a.db, a.mu.RUnlock, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	if a.db == nil || time.Since(a.lastRefresh) >= a.refreshRate {
		if _, err := a.refreshLocked(); err != nil {
			a.mu.Unlock()
			return nil, nil, err
		}
	}
	a.mu.Unlock()

	a.mu.RLock()
	if a.db == nil {
		a.mu.RUnlock()
		return nil, nil, errArchiveClosed
	}
	return a.db, a.mu.RUnlock, nil
}

var errArchiveClosed = errors.New("archive closed")

// Refresh forces the view to be rebuilt from the files on disk. It waits
// for queries still reading the old view.
func (a *Archive) Refresh() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.refreshLocked()
	return err
}

func (a *Archive) refreshLocked() (*sql.DB, error) {
	start := time.Now()

	files, err := findParquetFilesMulti(a.roots)
	if err != nil {
		return nil, fmt.Errorf("find parquet files: %w", err)
	}
	db, err := openDuckDB(files)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if a.db != nil {
		_ = a.db.Close()
	}
	a.db = db
	a.files = len(files)
	a.lastRefresh = time.Now()

	a.logger.Debug("archive view refreshed", "files", len(files), "took", time.Since(start))
	return a.db, nil
}

func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// TopGames returns the highest scoring archived games, best first. Ties go
// to the game that started first.
func (a *Archive) TopGames(ctx context.Context, limit int) (GamesResponse, error) {
	db, release, err := a.acquire()
	if err != nil {
		return GamesResponse{}, err
	}
	defer release()

	var resp GamesResponse
	if err := db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT game_id) FROM ticks`).Scan(&resp.Total); err != nil {
		return GamesResponse{}, fmt.Errorf("count games: %w", err)
	}

	query := fmt.Sprintf(`SELECT
			game_id,
			MAX(score)::INTEGER AS score,
			MAX(tick)::INTEGER AS max_tick,
			COUNT(*)::INTEGER AS tick_count,
			MAX(len(body_x) + 1)::INTEGER AS max_length,
			bool_or(state = 'game_over') AS finished,
			MIN(recorded_ns)::BIGINT AS started_ns,
			MIN(source)::VARCHAR AS source,
			MIN(filename)::VARCHAR AS file
		FROM ticks
		GROUP BY game_id
		ORDER BY score DESC, started_ns ASC
		LIMIT %d`, clampLimit(limit, MaxLimit))

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return GamesResponse{}, fmt.Errorf("query top games: %w", err)
	}
	defer rows.Close()

	resp.Games = make([]GameSummary, 0)
	for rows.Next() {
		var g GameSummary
		var file string
		if err := rows.Scan(&g.GameID, &g.Score, &g.MaxTick, &g.TickCount, &g.MaxLength, &g.Finished, &g.StartedNs, &g.Source, &file); err != nil {
			return GamesResponse{}, fmt.Errorf("scan game: %w", err)
		}
		g.SourceFile = makeRelativeToRoots(file, a.roots)
		resp.Games = append(resp.Games, g)
	}
	if err := rows.Err(); err != nil {
		return GamesResponse{}, err
	}
	return resp, nil
}

// ErrGameNotFound is returned by GameTicks for unknown ids.
var ErrGameNotFound = errors.New("game not found")

// GameTicks returns every archived snapshot of one game in tick order.
func (a *Archive) GameTicks(ctx context.Context, gameID string) ([]Tick, error) {
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return nil, ErrGameNotFound
	}
	db, release, err := a.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := db.QueryContext(ctx, `SELECT
			tick, score, state,
			head_x, head_z, facing_x, facing_z,
			body_x, body_z,
			has_food, food_x, food_z,
			has_special, special_x, special_z, special_remaining
		FROM ticks
		WHERE game_id = ?
		ORDER BY tick ASC`, gameID)
	if err != nil {
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	var out []Tick
	for rows.Next() {
		var t Tick
		var bodyX, bodyZ any
		var hasFood, hasSpecial bool
		var food, special Point
		if err := rows.Scan(
			&t.Tick, &t.Score, &t.State,
			&t.Head.X, &t.Head.Z, &t.Facing.X, &t.Facing.Z,
			&bodyX, &bodyZ,
			&hasFood, &food.X, &food.Z,
			&hasSpecial, &special.X, &special.Z, &t.SpecialRemaining,
		); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		t.Body = zipPoints(asInt32Slice(bodyX), asInt32Slice(bodyZ))
		if hasFood {
			t.Food = &food
		}
		if hasSpecial {
			t.Special = &special
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrGameNotFound
	}
	return out, nil
}

// openDuckDB creates an in-memory DuckDB with a "ticks" view over the given
// parquet files.
func openDuckDB(parquetFiles []string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, err
	}
	// Basic pragmas; ignore errors for compatibility across versions.
	_, _ = db.Exec("PRAGMA threads=2")
	// Responses must reflect on-disk changes.
	_, _ = db.Exec("PRAGMA enable_object_cache=false")

	if _, err := db.Exec(viewSQL(parquetFiles)); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// viewSQL builds the CREATE VIEW statement. With no files the view is empty
// but keeps the archive schema so queries still bind.
func viewSQL(parquetFiles []string) string {
	if len(parquetFiles) == 0 {
		return `CREATE OR REPLACE VIEW ticks AS
			SELECT * FROM (
				SELECT
					NULL::VARCHAR AS game_id,
					NULL::INTEGER AS tick,
					NULL::INTEGER AS grid_size,
					NULL::BIGINT AS recorded_ns,
					NULL::INTEGER AS score,
					NULL::VARCHAR AS state,
					NULL::INTEGER AS head_x,
					NULL::INTEGER AS head_z,
					NULL::INTEGER AS facing_x,
					NULL::INTEGER AS facing_z,
					NULL::INTEGER[] AS body_x,
					NULL::INTEGER[] AS body_z,
					NULL::BOOLEAN AS has_food,
					NULL::INTEGER AS food_x,
					NULL::INTEGER AS food_z,
					NULL::BOOLEAN AS has_special,
					NULL::INTEGER AS special_x,
					NULL::INTEGER AS special_z,
					NULL::REAL AS special_remaining,
					NULL::VARCHAR AS source,
					NULL::VARCHAR AS filename
			) WHERE 1=0`
	}

	arr := make([]string, 0, len(parquetFiles))
	for _, p := range parquetFiles {
		arr = append(arr, "'"+escapeSQLString(p)+"'")
	}
	// filename=true adds a 'filename' column so the API can show provenance.
	return "CREATE OR REPLACE VIEW ticks AS SELECT * FROM read_parquet([" + strings.Join(arr, ",") + "], filename=true, union_by_name=true)"
}
