// Package config assembles runtime settings from a .env file, an optional
// YAML file and the process environment, in that order of increasing priority.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const FileEnv = "DIETINSIGHTS_CONFIG"

type Config struct {
	ListenAddr string        `yaml:"listen_addr" validate:"required"`
	Dataset    DatasetConfig `yaml:"dataset"`
	Watch      WatchConfig   `yaml:"watch"`
	Cache      CacheConfig   `yaml:"cache"`
	Log        LogConfig     `yaml:"log"`
	ExportDir  string        `yaml:"export_dir"`
}

type DatasetConfig struct {
	// Path is the local CSV. With a bucket configured it is the fallback.
	Path      string `yaml:"path" validate:"required_without=Bucket"`
	Bucket    string `yaml:"bucket"`
	Blob      string `yaml:"blob" validate:"required_with=Bucket"`
	Endpoint  string `yaml:"endpoint" validate:"omitempty,url"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
	Interval time.Duration `yaml:"interval" validate:"gte=0"`
	// MinGap limits reloads from any trigger, including POST /api/reload.
	MinGap time.Duration `yaml:"min_gap" validate:"gte=0"`
}

type CacheConfig struct {
	MaxEntries int `yaml:"max_entries" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

func Default() Config {
	return Config{
		ListenAddr: ":8080",
		Dataset: DatasetConfig{
			Path: "All_Diets.csv",
			Blob: "All_Diets.csv",
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
			MinGap:   2 * time.Second,
		},
		Cache: CacheConfig{MaxEntries: 256},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// UsesS3 reports whether the dataset should be read from a bucket.
func (c Config) UsesS3() bool { return c.Dataset.Bucket != "" }

var validate = validator.New()

// Load reads .env (outside production), the YAML file named by
// DIETINSIGHTS_CONFIG and then environment overrides.
func Load() (Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := Default()
	if path := os.Getenv(FileEnv); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	str("LISTEN_ADDR", &cfg.ListenAddr)
	if port := os.Getenv("PORT"); port != "" && os.Getenv("LISTEN_ADDR") == "" {
		cfg.ListenAddr = ":" + port
	}
	str("DATASET_PATH", &cfg.Dataset.Path)
	str("DATASET_BUCKET", &cfg.Dataset.Bucket)
	str("DATASET_BLOB", &cfg.Dataset.Blob)
	str("STORAGE_ENDPOINT", &cfg.Dataset.Endpoint)
	str("STORAGE_REGION", &cfg.Dataset.Region)
	str("STORAGE_ACCESS_KEY", &cfg.Dataset.AccessKey)
	str("STORAGE_SECRET_KEY", &cfg.Dataset.SecretKey)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("EXPORT_DIR", &cfg.ExportDir)

	if v, ok := os.LookupEnv("WATCH_DATASET"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("WATCH_DATASET: %w", err)
		}
		cfg.Watch.Enabled = b
	}
	for key, dst := range map[string]*time.Duration{
		"WATCH_DEBOUNCE":  &cfg.Watch.Debounce,
		"RELOAD_INTERVAL": &cfg.Watch.Interval,
		"RELOAD_MIN_GAP":  &cfg.Watch.MinGap,
	} {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	if v, ok := os.LookupEnv("CACHE_MAX_ENTRIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CACHE_MAX_ENTRIES: %w", err)
		}
		cfg.Cache.MaxEntries = n
	}
	return nil
}

// NewLogger builds the process logger described by lc.
func NewLogger(lc LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
