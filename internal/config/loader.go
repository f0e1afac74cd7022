package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/example/item-scheduler/internal/alerts"
	"github.com/example/item-scheduler/internal/application"
	"github.com/example/item-scheduler/internal/persistence/sqlite/migration"
	"github.com/example/item-scheduler/internal/recurrence"
)

// Config captures file and environment driven configuration values for the scheduler service.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	Timezone   string           `yaml:"timezone"`
	Log        LogConfig        `yaml:"log"`
	Projection ProjectionConfig `yaml:"projection"`
	Reminders  RemindersConfig  `yaml:"reminders"`
	Alerts     AlertsConfig     `yaml:"alerts"`
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type SQLiteConfig struct {
	Path        string        `yaml:"path"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

type LogConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is json or text.
	Format string `yaml:"format"`
}

type ProjectionConfig struct {
	MaxRangeDays   int         `yaml:"max_range_days"`
	MaxOccurrences int         `yaml:"max_occurrences"`
	Workers        int         `yaml:"workers"`
	Cache          CacheConfig `yaml:"cache"`
}

type CacheConfig struct {
	Enabled         bool          `yaml:"enabled"`
	TTL             time.Duration `yaml:"ttl"`
	MaxEntries      int           `yaml:"max_entries"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type RemindersConfig struct {
	// Offsets apply to items whose reminder offsets were never set.
	Offsets []int `yaml:"default_offsets"`
}

type AlertsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// Default returns the configuration used when neither a file nor the
// environment supplies a value.
func Default() Config {
	return Config{
		HTTP:     HTTPConfig{Port: 8080},
		SQLite:   SQLiteConfig{Path: "scheduler.db", BusyTimeout: 30 * time.Second},
		Timezone: "Asia/Tokyo",
		Log:      LogConfig{Level: "info", Format: "json"},
		Projection: ProjectionConfig{
			MaxRangeDays:   application.DefaultMaxRangeDays,
			MaxOccurrences: recurrence.DefaultMaxOccurrences,
			Workers:        application.DefaultWorkers,
			Cache: CacheConfig{
				Enabled:         true,
				TTL:             recurrence.DefaultCacheConfig.TTL,
				MaxEntries:      recurrence.DefaultCacheConfig.MaxEntries,
				CleanupInterval: recurrence.DefaultCacheConfig.CleanupInterval,
			},
		},
		Alerts: AlertsConfig{Enabled: true, Schedule: alerts.DefaultSchedule},
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// when path is non-empty, then SCHEDULER_* environment variables.
//
// Every invalid value is reported in a single error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("config file not found: %s", path)
			}
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	invalid := applyEnv(&cfg)
	invalid = append(invalid, cfg.validate()...)
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid configuration values: %s", strings.Join(invalid, ", "))
	}
	return cfg, nil
}

func applyEnv(cfg *Config) []string {
	var invalid []string

	envInt := func(key string, dst *int) {
		if value := lookup(key); value != "" {
			n, err := strconv.Atoi(value)
			if err != nil {
				invalid = append(invalid, key)
				return
			}
			*dst = n
		}
	}
	envBool := func(key string, dst *bool) {
		if value := lookup(key); value != "" {
			b, err := strconv.ParseBool(value)
			if err != nil {
				invalid = append(invalid, key)
				return
			}
			*dst = b
		}
	}
	envDuration := func(key string, dst *time.Duration) {
		if value := lookup(key); value != "" {
			d, err := time.ParseDuration(value)
			if err != nil {
				invalid = append(invalid, key)
				return
			}
			*dst = d
		}
	}
	envString := func(key string, dst *string) {
		if value := lookup(key); value != "" {
			*dst = value
		}
	}

	envInt("SCHEDULER_HTTP_PORT", &cfg.HTTP.Port)
	envString("SCHEDULER_SQLITE_PATH", &cfg.SQLite.Path)
	envDuration("SCHEDULER_SQLITE_BUSY_TIMEOUT", &cfg.SQLite.BusyTimeout)
	envString("SCHEDULER_TIMEZONE", &cfg.Timezone)
	envString("SCHEDULER_LOG_LEVEL", &cfg.Log.Level)
	envString("SCHEDULER_LOG_FORMAT", &cfg.Log.Format)
	envInt("SCHEDULER_PROJECTION_MAX_RANGE_DAYS", &cfg.Projection.MaxRangeDays)
	envInt("SCHEDULER_PROJECTION_MAX_OCCURRENCES", &cfg.Projection.MaxOccurrences)
	envInt("SCHEDULER_PROJECTION_WORKERS", &cfg.Projection.Workers)
	envBool("SCHEDULER_PROJECTION_CACHE_ENABLED", &cfg.Projection.Cache.Enabled)
	envDuration("SCHEDULER_PROJECTION_CACHE_TTL", &cfg.Projection.Cache.TTL)
	envInt("SCHEDULER_PROJECTION_CACHE_MAX_ENTRIES", &cfg.Projection.Cache.MaxEntries)
	envDuration("SCHEDULER_PROJECTION_CACHE_CLEANUP_INTERVAL", &cfg.Projection.Cache.CleanupInterval)
	envBool("SCHEDULER_ALERTS_ENABLED", &cfg.Alerts.Enabled)
	envString("SCHEDULER_ALERTS_SCHEDULE", &cfg.Alerts.Schedule)

	if value := lookup("SCHEDULER_REMINDERS_DEFAULT_OFFSETS"); value != "" {
		offsets, err := parseOffsets(value)
		if err != nil {
			invalid = append(invalid, "SCHEDULER_REMINDERS_DEFAULT_OFFSETS")
		} else {
			cfg.Reminders.Offsets = offsets
		}
	}

	return invalid
}

func (c Config) validate() []string {
	var invalid []string
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		invalid = append(invalid, "http.port")
	}
	if strings.TrimSpace(c.SQLite.Path) == "" {
		invalid = append(invalid, "sqlite.path")
	}
	if c.SQLite.BusyTimeout < 0 {
		invalid = append(invalid, "sqlite.busy_timeout")
	}
	if _, err := c.Location(); err != nil {
		invalid = append(invalid, "timezone")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		invalid = append(invalid, "log.level")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		invalid = append(invalid, "log.format")
	}
	if c.Projection.MaxRangeDays <= 0 {
		invalid = append(invalid, "projection.max_range_days")
	}
	if c.Projection.MaxOccurrences <= 0 {
		invalid = append(invalid, "projection.max_occurrences")
	}
	if c.Projection.Workers <= 0 {
		invalid = append(invalid, "projection.workers")
	}
	if c.Projection.Cache.TTL < 0 {
		invalid = append(invalid, "projection.cache.ttl")
	}
	if c.Projection.Cache.MaxEntries < 0 {
		invalid = append(invalid, "projection.cache.max_entries")
	}
	if c.Projection.Cache.CleanupInterval < 0 {
		invalid = append(invalid, "projection.cache.cleanup_interval")
	}
	for _, offset := range c.Reminders.Offsets {
		if alerts.CheckOffset(offset) != nil {
			invalid = append(invalid, "reminders.default_offsets")
			break
		}
	}
	if c.Alerts.Enabled {
		if _, err := cron.ParseStandard(c.Alerts.Schedule); err != nil {
			invalid = append(invalid, "alerts.schedule")
		}
	}
	return invalid
}

// Location resolves Timezone. An empty value means UTC.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// SlogLevel converts Level into a slog level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, err
	}
	return level, nil
}

// Storage returns the SQLite settings the service opens its database with.
func (c Config) Storage() migration.SQLiteConfig {
	storage := migration.DefaultSQLiteConfig(c.SQLite.Path)
	storage.BusyTimeout = c.SQLite.BusyTimeout
	return storage
}

// Engine returns the projection engine settings.
func (c Config) Engine(loc *time.Location) recurrence.EngineConfig {
	return recurrence.EngineConfig{
		Location:       loc,
		MaxOccurrences: c.Projection.MaxOccurrences,
		CacheEnabled:   c.Projection.Cache.Enabled,
		Cache: recurrence.CacheConfig{
			TTL:             c.Projection.Cache.TTL,
			MaxEntries:      c.Projection.Cache.MaxEntries,
			CleanupInterval: c.Projection.Cache.CleanupInterval,
		},
	}
}

// DefaultOffsets implements alerts.DefaultOffsetProvider.
func (r RemindersConfig) DefaultOffsets(context.Context) ([]int, error) {
	return append([]int(nil), r.Offsets...), nil
}

func lookup(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func parseOffsets(value string) ([]int, error) {
	parts := strings.Split(value, ",")
	offsets := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		offsets = append(offsets, n)
	}
	return offsets, nil
}
