// Package config loads thumbcache settings from YAML, .env and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/store"
	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/supervisor"
)

// DefaultFile is looked up in the home directory when no path is given.
const DefaultFile = ".thumbcache.yaml"

// Config represents the complete thumbcache configuration
type Config struct {
	Workers      int            `yaml:"workers"`        // preload pool size (default: 16)
	MaxCacheSize int            `yaml:"max_cache_size"` // resident thumbnails (default: 32)
	IdleTickMS   int            `yaml:"idle_tick_ms"`   // idle loop wake-up (default: 50)
	Negative     NegativeConfig `yaml:"negative"`
	Log          LogConfig      `yaml:"log"`
	Status       StatusConfig   `yaml:"status"`
}

// NegativeConfig controls caching of files that failed to decode
type NegativeConfig struct {
	Mode       string `yaml:"mode"`        // ttl, never
	TTLS       int    `yaml:"ttl_s"`       // entry lifetime in seconds (default: 30)
	MaxEntries int    `yaml:"max_entries"` // default: 256
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// StatusConfig contains status publishing settings
type StatusConfig struct {
	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig contains MQTT broker settings. An empty broker disables
// publishing.
type MQTTConfig struct {
	Broker    string `yaml:"broker"`
	Topic     string `yaml:"topic"`
	ClientID  string `yaml:"client_id"`
	IntervalS int    `yaml:"interval_s"`
	QoS       byte   `yaml:"qos"`
}

// Environment overrides, applied after the file.
const (
	EnvWorkers      = "THUMBCACHE_WORKERS"
	EnvMaxCacheSize = "THUMBCACHE_MAX_CACHE_SIZE"
	EnvNegativeMode = "THUMBCACHE_NEGATIVE_MODE"
	EnvMQTTBroker   = "THUMBCACHE_MQTT_BROKER"
)

// Default returns a validated configuration with every default filled in.
func Default() *Config {
	cfg := &Config{}
	if err := Validate(cfg); err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return cfg
}

// DefaultPath returns ~/.thumbcache.yaml.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to find home directory: %w", err)
	}
	return filepath.Join(home, DefaultFile), nil
}

// Load reads a YAML configuration file, applies .env and environment
// overrides and validates the result.
//
// An empty path means DefaultPath; a missing default file yields the
// defaults. A missing explicit path is an error. "~" is expanded.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand config path: %w", err)
	}

	var cfg Config

	data, err := os.ReadFile(expanded)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, platformerrors.Wrap(err, platformerrors.CodeInvalidConfig, "failed to parse config")
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		slog.Debug("no config file, using defaults", "path", expanded)
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// .env is optional.
	_ = godotenv.Load()

	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ApplyEnv overrides cfg with THUMBCACHE_* environment variables.
func ApplyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv(EnvWorkers)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return platformerrors.Wrapf(err, platformerrors.CodeInvalidConfig, "%s must be an integer", EnvWorkers)
		}
		cfg.Workers = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvMaxCacheSize)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return platformerrors.Wrapf(err, platformerrors.CodeInvalidConfig, "%s must be an integer", EnvMaxCacheSize)
		}
		cfg.MaxCacheSize = n
	}
	if v := strings.TrimSpace(os.Getenv(EnvNegativeMode)); v != "" {
		cfg.Negative.Mode = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMQTTBroker)); v != "" {
		cfg.Status.MQTT.Broker = v
	}
	return nil
}

// SupervisorOptions maps the configuration onto supervisor options.
//
// An unknown negative.mode (possible only on a config that skipped Validate)
// falls back to the ttl policy.
func (c *Config) SupervisorOptions(logger *slog.Logger) supervisor.Options {
	policy, err := store.ParseNegativePolicy(c.Negative.Mode)
	if err != nil {
		policy = store.NegativeTTL
		if logger != nil {
			logger.Warn("invalid negative cache mode, using ttl",
				"mode", c.Negative.Mode,
				"error", err)
		}
	}

	return supervisor.Options{
		Workers:      c.Workers,
		MaxCacheSize: c.MaxCacheSize,
		IdleTick:     time.Duration(c.IdleTickMS) * time.Millisecond,
		Negative: supervisor.NegativeOptions{
			Policy:     policy,
			TTL:        time.Duration(c.Negative.TTLS) * time.Second,
			MaxEntries: c.Negative.MaxEntries,
		},
		Logger: logger,
	}
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
