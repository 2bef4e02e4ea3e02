package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config stores runtime configuration for the discussion client.
type Config struct {
	// File is the config file that was applied, if any.
	File    string
	Server  ServerConfig
	Session SessionConfig
	Store   StoreConfig
	Log     LogConfig
}

type ServerConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

type SessionConfig struct {
	MinDuration     int
	DefaultDuration int
	ResumeSeconds   int
	SilenceDelay    time.Duration
	SilenceJitter   time.Duration
	ConflictGrace   time.Duration
	QueuedRetry     time.Duration
	EndWait         time.Duration
	SnapshotTTL     time.Duration
}

type StoreConfig struct {
	Driver    string
	Path      string
	RedisAddr string
	Key       string
}

type LogConfig struct {
	Level  string
	Format string
}

// fileConfig maps config.toml keys.
type fileConfig struct {
	ServerURL          string `toml:"server_url"`
	RequestTimeoutMS   int    `toml:"request_timeout_ms"`
	MinDuration        int    `toml:"min_duration"`
	DefaultDuration    int    `toml:"default_duration"`
	ResumeSeconds      int    `toml:"resume_seconds"`
	SilenceDelayMS     int    `toml:"silence_delay_ms"`
	SilenceJitterMS    int    `toml:"silence_jitter_ms"`
	ConflictGraceMS    int    `toml:"conflict_grace_ms"`
	QueuedRetryMS      int    `toml:"queued_retry_ms"`
	EndWaitMS          int    `toml:"end_wait_ms"`
	SnapshotTTLMinutes int    `toml:"snapshot_ttl_minutes"`
	StoreDriver        string `toml:"store_driver"`
	StorePath          string `toml:"store_path"`
	RedisAddr          string `toml:"redis_addr"`
	StoreKey           string `toml:"store_key"`
	LogLevel           string `toml:"log_level"`
	LogFormat          string `toml:"log_format"`
}

// Default returns the built-in configuration. The store path is left empty
// and resolved once the driver is known.
func Default() Config {
	return Config{
		Server: ServerConfig{
			BaseURL:        "http://127.0.0.1:8000",
			RequestTimeout: 30 * time.Second,
		},
		Session: SessionConfig{
			MinDuration:     10,
			DefaultDuration: 300,
			ResumeSeconds:   30,
			SilenceDelay:    5 * time.Second,
			SilenceJitter:   time.Second,
			ConflictGrace:   50 * time.Millisecond,
			QueuedRetry:     2 * time.Second,
			EndWait:         8 * time.Second,
			SnapshotTTL:     2 * time.Hour,
		},
		Store: StoreConfig{
			Driver: "file",
			Key:    "gd_session",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load resolves configuration from defaults, the optional config file, and
// environment variables, in increasing precedence.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}
	configDir := filepath.Join(home, ".config", "gdsim")
	cfg := Default()

	explicit := strings.TrimSpace(os.Getenv("GDSIM_CONFIG"))
	path := firstNonEmpty(explicit, filepath.Join(configDir, "config.toml"))
	if _, statErr := os.Stat(path); statErr == nil {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
		cfg.File = path
	} else if explicit != "" {
		return Config{}, fmt.Errorf("load config: %w", statErr)
	}

	applyEnv(&cfg)
	normalize(&cfg, configDir)
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}

	if meta.IsDefined("server_url") {
		cfg.Server.BaseURL = strings.TrimSpace(raw.ServerURL)
	}
	if meta.IsDefined("request_timeout_ms") {
		cfg.Server.RequestTimeout = millis(raw.RequestTimeoutMS)
	}
	if meta.IsDefined("min_duration") {
		cfg.Session.MinDuration = raw.MinDuration
	}
	if meta.IsDefined("default_duration") {
		cfg.Session.DefaultDuration = raw.DefaultDuration
	}
	if meta.IsDefined("resume_seconds") {
		cfg.Session.ResumeSeconds = raw.ResumeSeconds
	}
	if meta.IsDefined("silence_delay_ms") {
		cfg.Session.SilenceDelay = millis(raw.SilenceDelayMS)
	}
	if meta.IsDefined("silence_jitter_ms") {
		cfg.Session.SilenceJitter = millis(raw.SilenceJitterMS)
	}
	if meta.IsDefined("conflict_grace_ms") {
		cfg.Session.ConflictGrace = millis(raw.ConflictGraceMS)
	}
	if meta.IsDefined("queued_retry_ms") {
		cfg.Session.QueuedRetry = millis(raw.QueuedRetryMS)
	}
	if meta.IsDefined("end_wait_ms") {
		cfg.Session.EndWait = millis(raw.EndWaitMS)
	}
	if meta.IsDefined("snapshot_ttl_minutes") {
		cfg.Session.SnapshotTTL = time.Duration(raw.SnapshotTTLMinutes) * time.Minute
	}
	if meta.IsDefined("store_driver") {
		cfg.Store.Driver = strings.TrimSpace(raw.StoreDriver)
	}
	if meta.IsDefined("store_path") {
		cfg.Store.Path = strings.TrimSpace(raw.StorePath)
	}
	if meta.IsDefined("redis_addr") {
		cfg.Store.RedisAddr = strings.TrimSpace(raw.RedisAddr)
	}
	if meta.IsDefined("store_key") {
		cfg.Store.Key = strings.TrimSpace(raw.StoreKey)
	}
	if meta.IsDefined("log_level") {
		cfg.Log.Level = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_format") {
		cfg.Log.Format = strings.TrimSpace(raw.LogFormat)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.BaseURL = envOrDefault("GDSIM_SERVER_URL", cfg.Server.BaseURL)
	cfg.Server.RequestTimeout = envOrDefaultMillis("GDSIM_REQUEST_TIMEOUT_MS", cfg.Server.RequestTimeout)

	cfg.Session.MinDuration = envOrDefaultInt("GDSIM_MIN_DURATION", cfg.Session.MinDuration)
	cfg.Session.DefaultDuration = envOrDefaultInt("GDSIM_DEFAULT_DURATION", cfg.Session.DefaultDuration)
	cfg.Session.ResumeSeconds = envOrDefaultInt("GDSIM_RESUME_SECONDS", cfg.Session.ResumeSeconds)
	cfg.Session.SilenceDelay = envOrDefaultMillis("GDSIM_SILENCE_DELAY_MS", cfg.Session.SilenceDelay)
	cfg.Session.SilenceJitter = envOrDefaultMillis("GDSIM_SILENCE_JITTER_MS", cfg.Session.SilenceJitter)
	cfg.Session.ConflictGrace = envOrDefaultMillis("GDSIM_CONFLICT_GRACE_MS", cfg.Session.ConflictGrace)
	cfg.Session.QueuedRetry = envOrDefaultMillis("GDSIM_QUEUED_RETRY_MS", cfg.Session.QueuedRetry)
	cfg.Session.EndWait = envOrDefaultMillis("GDSIM_END_WAIT_MS", cfg.Session.EndWait)
	if minutes := envOrDefaultInt("GDSIM_SNAPSHOT_TTL_MINUTES", -1); minutes >= 0 {
		cfg.Session.SnapshotTTL = time.Duration(minutes) * time.Minute
	}

	cfg.Store.Driver = envOrDefault("GDSIM_STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.Path = envOrDefault("GDSIM_STORE_PATH", cfg.Store.Path)
	cfg.Store.RedisAddr = envOrDefault("GDSIM_REDIS_ADDR", cfg.Store.RedisAddr)
	cfg.Store.Key = envOrDefault("GDSIM_STORE_KEY", cfg.Store.Key)

	cfg.Log.Level = envOrDefault("GDSIM_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envOrDefault("GDSIM_LOG_FORMAT", cfg.Log.Format)
}

// normalize replaces out-of-range values with defaults.
func normalize(cfg *Config, configDir string) {
	defaults := Default()

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = defaults.Server.BaseURL
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = defaults.Server.RequestTimeout
	}
	if cfg.Session.MinDuration <= 0 {
		cfg.Session.MinDuration = defaults.Session.MinDuration
	}
	if cfg.Session.DefaultDuration < cfg.Session.MinDuration {
		cfg.Session.DefaultDuration = max(defaults.Session.DefaultDuration, cfg.Session.MinDuration)
	}
	if cfg.Session.ResumeSeconds <= 0 {
		cfg.Session.ResumeSeconds = defaults.Session.ResumeSeconds
	}
	if cfg.Session.SilenceDelay <= 0 {
		cfg.Session.SilenceDelay = defaults.Session.SilenceDelay
	}
	if cfg.Session.SilenceJitter <= 0 || cfg.Session.SilenceJitter > cfg.Session.SilenceDelay {
		cfg.Session.SilenceJitter = min(defaults.Session.SilenceJitter, cfg.Session.SilenceDelay)
	}
	if cfg.Session.ConflictGrace <= 0 {
		cfg.Session.ConflictGrace = defaults.Session.ConflictGrace
	}
	if cfg.Session.QueuedRetry <= 0 {
		cfg.Session.QueuedRetry = defaults.Session.QueuedRetry
	}
	if cfg.Session.EndWait <= 0 {
		cfg.Session.EndWait = defaults.Session.EndWait
	}
	if cfg.Session.SnapshotTTL <= 0 {
		cfg.Session.SnapshotTTL = defaults.Session.SnapshotTTL
	}

	cfg.Store.Driver = strings.ToLower(firstNonEmpty(cfg.Store.Driver, defaults.Store.Driver))
	if cfg.Store.Path == "" {
		cfg.Store.Path = defaultStorePath(cfg.Store.Driver, configDir)
	}
	if cfg.Store.Key == "" {
		cfg.Store.Key = defaults.Store.Key
	}
	if cfg.Store.Driver == "redis" && cfg.Store.RedisAddr == "" {
		cfg.Store.RedisAddr = "127.0.0.1:6379"
	}

	cfg.Log.Level = strings.ToLower(firstNonEmpty(cfg.Log.Level, defaults.Log.Level))
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		cfg.Log.Format = "json"
	default:
		cfg.Log.Format = defaults.Log.Format
	}
}

func defaultStorePath(driver string, configDir string) string {
	if driver == "sqlite" {
		return filepath.Join(configDir, "session.db")
	}
	return filepath.Join(configDir, "session.json")
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return millis(parsed)
}
