package config

import (
	"fmt"
	"strings"
	"time"

	pebblestore "github.com/rzbill/esdb/internal/storage/pebble"
	logpkg "github.com/rzbill/esdb/pkg/log"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. ESDB_WRITER_MAX_GROUP_SIZE.
const EnvPrefix = "esdb"

// Config is the top-level configuration loaded from file and environment.
type Config struct {
	DataDir         string       `mapstructure:"data_dir"`
	Fsync           string       `mapstructure:"fsync"`
	FsyncIntervalMS int          `mapstructure:"fsync_interval_ms"`
	HTTPAddr        string       `mapstructure:"http_addr"`
	GRPCAddr        string       `mapstructure:"grpc_addr"`
	Log             LogConfig    `mapstructure:"log"`
	Writer          WriterConfig `mapstructure:"writer"`
	Limits          LimitsConfig `mapstructure:"limits"`
	Index           IndexConfig  `mapstructure:"index"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WriterConfig tunes the single log writer.
type WriterConfig struct {
	QueueSize    int `mapstructure:"queue_size"`
	MaxGroupSize int `mapstructure:"max_group_size"`
}

// LimitsConfig bounds request shapes accepted at the surfaces.
type LimitsConfig struct {
	MaxBatchEvents int `mapstructure:"max_batch_events"`
	MaxEventBytes  int `mapstructure:"max_event_bytes"`
	// MaxRequestBytes caps one encoded request body or gRPC message.
	MaxRequestBytes int `mapstructure:"max_request_bytes"`
}

type IndexConfig struct {
	Shards int `mapstructure:"shards"`
}

// Default returns built-in defaults. DataDir is left empty and resolved
// with DefaultDataDir by the server.
func Default() Config {
	return Config{
		Fsync:           "always",
		FsyncIntervalMS: 5,
		HTTPAddr:        ":2113",
		GRPCAddr:        ":1113",
		Log:             LogConfig{Level: "info", Format: "text"},
		Writer:          WriterConfig{QueueSize: 1024, MaxGroupSize: 128},
		Limits:          LimitsConfig{MaxBatchEvents: 4096, MaxEventBytes: 1 << 20, MaxRequestBytes: 64 << 20},
		Index:           IndexConfig{Shards: 64},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("fsync", d.Fsync)
	v.SetDefault("fsync_interval_ms", d.FsyncIntervalMS)
	v.SetDefault("http_addr", d.HTTPAddr)
	v.SetDefault("grpc_addr", d.GRPCAddr)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("writer.queue_size", d.Writer.QueueSize)
	v.SetDefault("writer.max_group_size", d.Writer.MaxGroupSize)
	v.SetDefault("limits.max_batch_events", d.Limits.MaxBatchEvents)
	v.SetDefault("limits.max_event_bytes", d.Limits.MaxEventBytes)
	v.SetDefault("limits.max_request_bytes", d.Limits.MaxRequestBytes)
	v.SetDefault("index.shards", d.Index.Shards)
}

// Load reads configuration from a YAML or JSON file (by extension) and
// overlays ESDB_* environment variables. An empty path loads defaults plus
// environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, err := pebblestore.ParseFsyncMode(c.Fsync); err != nil {
		return err
	}
	if c.FsyncIntervalMS < 0 {
		return fmt.Errorf("fsync_interval_ms must be >= 0")
	}
	if _, err := logpkg.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Writer.QueueSize <= 0 || c.Writer.MaxGroupSize <= 0 {
		return fmt.Errorf("writer.queue_size and writer.max_group_size must be > 0")
	}
	if c.Limits.MaxBatchEvents <= 0 || c.Limits.MaxEventBytes <= 0 {
		return fmt.Errorf("limits.max_batch_events and limits.max_event_bytes must be > 0")
	}
	if c.Limits.MaxRequestBytes <= 0 {
		return fmt.Errorf("limits.max_request_bytes must be > 0")
	}
	if c.Index.Shards <= 0 {
		return fmt.Errorf("index.shards must be > 0")
	}
	return nil
}

// FsyncMode returns the parsed fsync mode.
func (c Config) FsyncMode() pebblestore.FsyncMode {
	m, err := pebblestore.ParseFsyncMode(c.Fsync)
	if err != nil {
		return pebblestore.FsyncModeAlways
	}
	return m
}

func (c Config) FsyncInterval() time.Duration {
	return time.Duration(c.FsyncIntervalMS) * time.Millisecond
}
