package config

import (
	"github.com/google/uuid"
	platformerrors "github.com/jmgilman/go/errors"

	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/store"
	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/supervisor"
)

// maxWorkers caps the preload pool; each worker holds a decoded image.
const maxWorkers = 256

// Validate checks if the configuration is valid and fills in defaults
func Validate(cfg *Config) error {
	// Pool and cache sizes
	if cfg.Workers < 0 || cfg.Workers > maxWorkers {
		return invalid("workers must be between 1 and %d, got %d", maxWorkers, cfg.Workers)
	}
	if cfg.Workers == 0 {
		cfg.Workers = supervisor.DefaultWorkers
	}
	if cfg.MaxCacheSize < 0 {
		return invalid("max_cache_size must be >= 1, got %d", cfg.MaxCacheSize)
	}
	if cfg.MaxCacheSize == 0 {
		cfg.MaxCacheSize = supervisor.DefaultMaxCacheSize
	}
	if cfg.IdleTickMS < 0 {
		return invalid("idle_tick_ms must be >= 1, got %d", cfg.IdleTickMS)
	}
	if cfg.IdleTickMS == 0 {
		cfg.IdleTickMS = int(supervisor.DefaultIdleTick.Milliseconds())
	}

	// Negative cache
	policy, err := store.ParseNegativePolicy(cfg.Negative.Mode)
	if err != nil {
		return platformerrors.Wrap(err, platformerrors.CodeInvalidConfig, "negative.mode")
	}
	cfg.Negative.Mode = policy.String()
	if cfg.Negative.TTLS < 0 {
		return invalid("negative.ttl_s must be >= 1, got %d", cfg.Negative.TTLS)
	}
	if cfg.Negative.TTLS == 0 {
		cfg.Negative.TTLS = int(supervisor.DefaultNegativeTTL.Seconds())
	}
	if cfg.Negative.MaxEntries <= 0 {
		cfg.Negative.MaxEntries = supervisor.DefaultNegativeLimit
	}

	// Logging
	switch cfg.Log.Level {
	case "":
		cfg.Log.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level '%s' unknown (must be debug, info, warn or error)", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "":
		cfg.Log.Format = "json"
	case "json", "text":
	default:
		return invalid("log.format '%s' unknown (must be 'json' or 'text')", cfg.Log.Format)
	}

	// Status publishing (optional)
	mqtt := &cfg.Status.MQTT
	if mqtt.QoS > 2 {
		return invalid("status.mqtt.qos must be 0, 1 or 2, got %d", mqtt.QoS)
	}
	if mqtt.Topic == "" {
		mqtt.Topic = "thumbcache/status"
	}
	if mqtt.ClientID == "" {
		mqtt.ClientID = "thumbcache-" + uuid.NewString()[:8]
	}
	if mqtt.IntervalS <= 0 {
		mqtt.IntervalS = 5
	}

	return nil
}

func invalid(format string, args ...any) error {
	return platformerrors.Newf(platformerrors.CodeInvalidConfig, format, args...)
}
