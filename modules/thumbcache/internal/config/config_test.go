package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Delia-biu-aotoman/duplicate-image-deleter/modules/thumbcache/internal/store"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thumbcache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 16, cfg.Workers)
	assert.Equal(t, 32, cfg.MaxCacheSize)
	assert.Equal(t, 50, cfg.IdleTickMS)
	assert.Equal(t, "ttl", cfg.Negative.Mode)
	assert.Equal(t, 30, cfg.Negative.TTLS)
	assert.Equal(t, 256, cfg.Negative.MaxEntries)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "thumbcache/status", cfg.Status.MQTT.Topic)
	assert.Regexp(t, `^thumbcache-[0-9a-f]{8}$`, cfg.Status.MQTT.ClientID)
	assert.Empty(t, cfg.Status.MQTT.Broker)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
workers: 4
max_cache_size: 8
negative:
  mode: never
log:
  level: debug
  format: text
status:
  mqtt:
    broker: tcp://localhost:1883
    topic: review/thumbs
    qos: 1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 8, cfg.MaxCacheSize)
	assert.Equal(t, "never", cfg.Negative.Mode)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "tcp://localhost:1883", cfg.Status.MQTT.Broker)
	assert.Equal(t, "review/thumbs", cfg.Status.MQTT.Topic)
	assert.Equal(t, byte(1), cfg.Status.MQTT.QoS)
	assert.Equal(t, 5, cfg.Status.MQTT.IntervalS)

	opts := cfg.SupervisorOptions(nil)
	assert.Equal(t, 4, opts.Workers)
	assert.Equal(t, 8, opts.MaxCacheSize)
	assert.Equal(t, 50*time.Millisecond, opts.IdleTick)
	assert.Equal(t, store.NegativeNever, opts.Negative.Policy)
	assert.Equal(t, 30*time.Second, opts.Negative.TTL)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "workers: 4\nmax_cache_size: 8\n")
	t.Setenv(EnvWorkers, "2")
	t.Setenv(EnvMaxCacheSize, " 3 ")
	t.Setenv(EnvNegativeMode, "never")
	t.Setenv(EnvMQTTBroker, "tcp://broker:1883")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 3, cfg.MaxCacheSize)
	assert.Equal(t, "never", cfg.Negative.Mode)
	assert.Equal(t, "tcp://broker:1883", cfg.Status.MQTT.Broker)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(EnvMaxCacheSize+"=5\n"), 0o644))
	t.Chdir(dir)
	t.Cleanup(func() { _ = os.Unsetenv(EnvMaxCacheSize) })

	cfg, err := Load(writeConfig(t, "workers: 1\n"))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxCacheSize)
}

func TestLoad_MissingDefaultFileUsesDefaults(t *testing.T) {
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Workers)
}

func TestLoad_Errors(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "workers: [1, 2\n"))
		require.Error(t, err)
		assert.Equal(t, platformerrors.CodeInvalidConfig, platformerrors.GetCode(err))
	})

	t.Run("bad env integer", func(t *testing.T) {
		t.Setenv(EnvWorkers, "many")
		_, err := Load(writeConfig(t, ""))
		require.Error(t, err)
		assert.Equal(t, platformerrors.CodeInvalidConfig, platformerrors.GetCode(err))
	})
}

func TestSupervisorOptions_UnvalidatedModeFallsBackToTTL(t *testing.T) {
	cfg := &Config{Workers: 2, MaxCacheSize: 4}
	cfg.Negative.Mode = "sometimes"

	opts := cfg.SupervisorOptions(nil)
	assert.Equal(t, store.NegativeTTL, opts.Negative.Policy)
	assert.Equal(t, 2, opts.Workers)

	cfg.Negative.Mode = "never"
	assert.Equal(t, store.NegativeNever, cfg.SupervisorOptions(nil).Negative.Policy)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"negative workers", Config{Workers: -1}},
		{"too many workers", Config{Workers: maxWorkers + 1}},
		{"negative cache size", Config{MaxCacheSize: -3}},
		{"unknown negative mode", Config{Negative: NegativeConfig{Mode: "forever"}}},
		{"unknown log level", Config{Log: LogConfig{Level: "trace"}}},
		{"unknown log format", Config{Log: LogConfig{Format: "xml"}}},
		{"bad qos", Config{Status: StatusConfig{MQTT: MQTTConfig{QoS: 3}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := Validate(&cfg)
			require.Error(t, err)
			assert.Equal(t, platformerrors.CodeInvalidConfig, platformerrors.GetCode(err))
		})
	}
}
