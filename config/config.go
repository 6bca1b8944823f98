// Package config holds the settings shared by the snek binaries. Defaults
// come from SNEK_* environment variables; flags override them.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/brensch/dragonsnek/rules"
)

type Config struct {
	GridSize           int
	TickRate           time.Duration
	SpecialChance      float64
	SpecialLifetime    time.Duration
	DataDir            string
	ResultLog          string
	Listen             string
	LogFormat          string
	LogLevel           string
	LogFile            string
	ArchiveRefresh     time.Duration
	Seed               int64
	NoRecord           bool
	LeaderboardMaxRows int
}

// FromEnv returns the defaults with any SNEK_* environment overrides applied.
func FromEnv() Config {
	d := rules.DefaultSettings
	dataDir := getEnvOrDefault("SNEK_DATA_DIR", "data")
	return Config{
		GridSize:           getEnvIntOrDefault("SNEK_GRID_SIZE", int(d.GridSize)),
		TickRate:           getEnvDurationOrDefault("SNEK_TICK_RATE", d.TickRate),
		SpecialChance:      getEnvFloatOrDefault("SNEK_SPECIAL_CHANCE", d.SpecialSpawnChance),
		SpecialLifetime:    getEnvDurationOrDefault("SNEK_SPECIAL_LIFETIME", d.SpecialLifetime),
		DataDir:            dataDir,
		ResultLog:          getEnvOrDefault("SNEK_RESULT_LOG", filepath.Join(dataDir, "results.log")),
		Listen:             getEnvOrDefault("SNEK_LISTEN", ":8080"),
		LogFormat:          getEnvOrDefault("SNEK_LOG_FORMAT", "text"),
		LogLevel:           getEnvOrDefault("SNEK_LOG_LEVEL", "info"),
		LogFile:            getEnvOrDefault("SNEK_LOG_FILE", "snek.log"),
		ArchiveRefresh:     getEnvDurationOrDefault("SNEK_ARCHIVE_REFRESH", 30*time.Second),
		Seed:               getEnvInt64OrDefault("SNEK_SEED", 0),
		NoRecord:           getEnvBoolOrDefault("SNEK_NO_RECORD", false),
		LeaderboardMaxRows: getEnvIntOrDefault("SNEK_LEADERBOARD_MAX", 100),
	}
}

// RegisterFlags binds every field to fs using the current values as defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.GridSize, "grid", c.GridSize, "Grid side length (even, >= 4)")
	fs.DurationVar(&c.TickRate, "tick", c.TickRate, "Time between simulation ticks")
	fs.Float64Var(&c.SpecialChance, "special-chance", c.SpecialChance, "Per-tick chance of spawning special food")
	fs.DurationVar(&c.SpecialLifetime, "special-lifetime", c.SpecialLifetime, "How long special food stays on the board")
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "Directory for per-game .parquet archives")
	fs.StringVar(&c.ResultLog, "result-log", c.ResultLog, "Append-only log of finished games")
	fs.StringVar(&c.Listen, "listen", c.Listen, "HTTP listen address")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format: text, json or pretty")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn or error")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "Log file for the terminal game (the screen is taken by the board)")
	fs.DurationVar(&c.ArchiveRefresh, "archive-refresh", c.ArchiveRefresh, "How long the leaderboard view is cached")
	fs.Int64Var(&c.Seed, "seed", c.Seed, "Random seed (0 = time based)")
	fs.BoolVar(&c.NoRecord, "no-record", c.NoRecord, "Disable parquet recording")
	fs.IntVar(&c.LeaderboardMaxRows, "leaderboard-max", c.LeaderboardMaxRows, "Maximum rows returned by /api/games")
}

// Validate reports settings that cannot be clamped into something sensible.
func (c Config) Validate() error {
	if c.TickRate <= 0 {
		return fmt.Errorf("tick rate must be positive, got %s", c.TickRate)
	}
	if c.SpecialChance < 0 || c.SpecialChance > 1 {
		return fmt.Errorf("special chance must be in [0,1], got %v", c.SpecialChance)
	}
	if c.GridSize < 4 {
		return fmt.Errorf("grid size must be at least 4, got %d", c.GridSize)
	}
	return nil
}

// RuleSettings converts the config into engine settings. Point values and
// placement attempts keep their defaults.
func (c Config) RuleSettings() rules.Settings {
	s := rules.DefaultSettings
	s.GridSize = int32(c.GridSize)
	s.TickRate = c.TickRate
	s.SpecialSpawnChance = c.SpecialChance
	s.SpecialLifetime = c.SpecialLifetime
	return s
}

// RandSeed returns Seed, or a time based seed when Seed is zero.
func (c Config) RandSeed() int64 {
	if c.Seed != 0 {
		return c.Seed
	}
	return time.Now().UnixNano()
}

// Environment variable helpers
func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64OrDefault(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloatOrDefault(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}
