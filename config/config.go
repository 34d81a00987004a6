package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrMissingPlaylist is returned by Load when no playlist path is configured.
var ErrMissingPlaylist = errors.New("playlist path is not configured")

type Config struct {
	Playlist string `yaml:"playlist"`
	Port     int    `yaml:"port"`

	FFmpegPath    string `yaml:"ffmpeg_path"`
	FFmpegInArgs  string `yaml:"ffmpeg_in_args"`
	FFmpegOutArgs string `yaml:"ffmpeg_out_args"`

	GracefulTimeout time.Duration `yaml:"graceful_timeout"`
	KillTimeout     time.Duration `yaml:"kill_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	ChunkSize        int           `yaml:"chunk_size"`
	ManifestCacheTTL time.Duration `yaml:"manifest_cache_ttl"`
	StatsCron        string        `yaml:"stats_cron"`

	Debug    bool `yaml:"debug"`
	SafeLogs bool `yaml:"safe_logs"`

	LogFile       string `yaml:"log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	LogMaxAgeDays int    `yaml:"log_max_age_days"`
}

func Defaults() *Config {
	return &Config{
		Port:             8080,
		FFmpegPath:       "ffmpeg",
		FFmpegOutArgs:    "-c copy -f mpegts",
		GracefulTimeout:  5 * time.Second,
		KillTimeout:      5 * time.Second,
		ShutdownTimeout:  10 * time.Second,
		ChunkSize:        1024,
		ManifestCacheTTL: 5 * time.Minute,
		StatsCron:        "@every 1m",
		LogMaxSizeMB:     50,
		LogMaxBackups:    3,
		LogMaxAgeDays:    28,
	}
}

var globalConfig = Defaults()

func GetConfig() *Config {
	return globalConfig
}

func SetConfig(c *Config) {
	globalConfig = c
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment variables.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	if v, ok := lookup("PLAYLIST"); ok {
		c.Playlist = v
	}
	if v, ok := lookup("FFMPEG_PATH"); ok {
		c.FFmpegPath = v
	}
	if v, ok := os.LookupEnv("FFMPEG_IN_ARGS"); ok {
		c.FFmpegInArgs = v
	}
	if v, ok := os.LookupEnv("FFMPEG_OUT_ARGS"); ok {
		c.FFmpegOutArgs = v
	}
	if v, ok := os.LookupEnv("STATS_CRON"); ok {
		c.StatsCron = strings.TrimSpace(v)
	}
	if v, ok := lookup("LOG_FILE"); ok {
		c.LogFile = v
	}
	if v, ok := lookup("DEBUG"); ok {
		c.Debug = v == "true"
	}
	if v, ok := lookup("SAFE_LOGS"); ok {
		c.SafeLogs = v == "true"
	}

	ints := map[string]*int{
		"PORT":             &c.Port,
		"CHUNK_SIZE":       &c.ChunkSize,
		"LOG_MAX_SIZE_MB":  &c.LogMaxSizeMB,
		"LOG_MAX_BACKUPS":  &c.LogMaxBackups,
		"LOG_MAX_AGE_DAYS": &c.LogMaxAgeDays,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"GRACEFUL_TIMEOUT":   &c.GracefulTimeout,
		"KILL_TIMEOUT":       &c.KillTimeout,
		"SHUTDOWN_TIMEOUT":   &c.ShutdownTimeout,
		"MANIFEST_CACHE_TTL": &c.ManifestCacheTTL,
	}
	for key, dst := range durations {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = d
	}

	return nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Playlist) == "" {
		return ErrMissingPlaylist
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("invalid chunk size %d", c.ChunkSize)
	}
	if c.GracefulTimeout <= 0 || c.KillTimeout <= 0 {
		return errors.New("graceful and kill timeouts must be positive")
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}
