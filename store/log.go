package store

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Result is the outcome of one finished game.
type Result struct {
	GameID  string    `json:"game_id"`
	Score   int       `json:"score"`
	Ticks   int32     `json:"ticks"`
	EndedAt time.Time `json:"ended_at"`
}

// ResultLog records finished games in an append-only file and keeps them in
// memory for high-score lookups.
//
// On open we read the file into memory. Each Add appends one line and fsyncs.
// Partial or corrupt lines (e.g. after a crash mid-write) are skipped on load.
//
// Format: <game_id>\t<score>\t<ticks>\t<ended_unix_ms>\n
type ResultLog struct {
	mu      sync.RWMutex
	path    string
	file    *os.File
	results map[string]Result
	best    Result
}

func OpenResultLog(path string) (*ResultLog, error) {
	if path == "" {
		return nil, fmt.Errorf("log path is required")
	}

	l := &ResultLog{
		path:    path,
		results: make(map[string]Result),
	}

	// Best-effort load of earlier results.
	if f, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			res, ok := parseResultLine(scanner.Text())
			if !ok {
				continue
			}
			l.remember(res)
		}
		_ = f.Close()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	if err := terminateLastLine(file); err != nil {
		_ = file.Close()
		return nil, err
	}
	l.file = file
	return l, nil
}

// terminateLastLine ends a torn trailing line so the next append starts on
// a line of its own.
func terminateLastLine(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return fmt.Errorf("read log tail: %w", err)
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := f.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("repair log tail: %w", err)
	}
	return f.Sync()
}

func parseResultLine(line string) (Result, bool) {
	fields := strings.Split(strings.TrimSpace(line), "\t")
	if len(fields) != 4 || fields[0] == "" {
		return Result{}, false
	}
	score, err := strconv.Atoi(fields[1])
	if err != nil || score < 0 {
		return Result{}, false
	}
	ticks, err := strconv.ParseInt(fields[2], 10, 32)
	if err != nil {
		return Result{}, false
	}
	ms, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return Result{}, false
	}
	return Result{GameID: fields[0], Score: score, Ticks: int32(ticks), EndedAt: time.UnixMilli(ms)}, true
}

func formatResultLine(r Result) string {
	return fmt.Sprintf("%s\t%d\t%d\t%d\n", r.GameID, r.Score, r.Ticks, r.EndedAt.UnixMilli())
}

func (l *ResultLog) remember(r Result) {
	l.results[r.GameID] = r
	if l.best.GameID == "" || r.Score > l.best.Score {
		l.best = r
	}
}

func (l *ResultLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *ResultLog) Has(gameID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.results[gameID]
	return ok
}

func (l *ResultLog) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.results)
}

// Best returns the highest-scoring result. ok is false when the log is empty.
func (l *ResultLog) Best() (Result, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.best, l.best.GameID != ""
}

// Top returns up to n results ordered by score, highest first.
// Ties go to the earlier game.
func (l *ResultLog) Top(n int) []Result {
	l.mu.RLock()
	out := make([]Result, 0, len(l.results))
	for _, r := range l.results {
		out = append(out, r)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].EndedAt.Before(out[j].EndedAt)
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Add appends a result. Results for a game id already in the log are ignored.
func (l *ResultLog) Add(r Result) error {
	if r.GameID == "" {
		return fmt.Errorf("gameID is empty")
	}
	if strings.ContainsAny(r.GameID, "\t\n") {
		return fmt.Errorf("gameID %q contains separators", r.GameID)
	}
	if r.EndedAt.IsZero() {
		r.EndedAt = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.results[r.GameID]; ok {
		return nil
	}

	if l.file == nil {
		return fmt.Errorf("log file is closed")
	}

	if _, err := l.file.WriteString(formatResultLine(r)); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync log: %w", err)
	}

	l.remember(r)
	return nil
}
