package config

import (
	"DispatchEngine/log"
	"DispatchEngine/pool"
	"errors"
	"fmt"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"runtime"
	"strings"
	"time"
)

const EnvPrefix = "DISPATCH"

type Config struct {
	Pool    Pool       `mapstructure:"pool"`
	Server  Server     `mapstructure:"server"`
	Metrics Metrics    `mapstructure:"metrics"`
	Docker  Docker     `mapstructure:"docker"`
	Log     log.Config `mapstructure:"log"`
}

type Pool struct {
	Workers     int    `mapstructure:"workers"`
	EventBuffer int    `mapstructure:"event_buffer"`
	Ordering    string `mapstructure:"ordering"`
}

type Server struct {
	ListenAddress string        `mapstructure:"listen_address"`
	Retention     time.Duration `mapstructure:"retention"`
}

type Metrics struct {
	Enabled       bool   `mapstructure:"enabled"`
	ListenAddress string `mapstructure:"listen_address"`
	Path          string `mapstructure:"path"`
}

type Docker struct {
	Enabled        bool          `mapstructure:"enabled"`
	Image          string        `mapstructure:"image"`
	BuildContext   string        `mapstructure:"build_context"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("pool.workers", runtime.NumCPU())
	v.SetDefault("pool.event_buffer", 64)
	v.SetDefault("pool.ordering", "fifo")
	v.SetDefault("server.listen_address", "localhost:50051")
	v.SetDefault("server.retention", time.Hour)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen_address", "localhost:9090")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("docker.enabled", false)
	v.SetDefault("docker.image", "dispatch-engine-runner")
	v.SetDefault("docker.build_context", "")
	v.SetDefault("docker.default_timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", log.FormatJSON)
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// BindFlags registers the command line flags that override config keys.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	flags.Int("workers", runtime.NumCPU(), "Number of pool workers")
	flags.String("ordering", "fifo", "Backlog dispatch order: fifo or lifo")
	flags.String("listen-address", "localhost:50051", "gRPC listen address")
	flags.String("metrics-address", "localhost:9090", "Prometheus metrics listen address")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", log.FormatJSON, "Log format: json or console")

	bindings := map[string]string{
		"pool.workers":           "workers",
		"pool.ordering":          "ordering",
		"server.listen_address":  "listen-address",
		"metrics.listen_address": "metrics-address",
		"log.level":              "log-level",
		"log.format":             "log-format",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind flag %q: %w", flag, err)
		}
	}
	return nil
}

// Load reads the optional YAML file, the environment and any bound flags.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var err error
	if c.Pool.Workers <= 0 {
		err = multierr.Append(err, fmt.Errorf("pool.workers must be positive, got %d", c.Pool.Workers))
	}
	if c.Pool.EventBuffer < 0 {
		err = multierr.Append(err, fmt.Errorf("pool.event_buffer must not be negative, got %d", c.Pool.EventBuffer))
	}
	if _, parseErr := pool.ParseOrdering(c.Pool.Ordering); parseErr != nil {
		err = multierr.Append(err, fmt.Errorf("pool.ordering: %w", parseErr))
	}
	if c.Server.ListenAddress == "" {
		err = multierr.Append(err, errors.New("server.listen_address must not be empty"))
	}
	if c.Server.Retention < 0 {
		err = multierr.Append(err, fmt.Errorf("server.retention must not be negative, got %s", c.Server.Retention))
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		err = multierr.Append(err, errors.New("metrics.listen_address must not be empty when metrics are enabled"))
	}
	if c.Docker.Enabled && c.Docker.Image == "" {
		err = multierr.Append(err, errors.New("docker.image must not be empty when docker is enabled"))
	}
	return err
}

// PoolOptions translates the pool section into pool options.
func (c *Config) PoolOptions() []pool.Option {
	ordering, _ := pool.ParseOrdering(c.Pool.Ordering)
	return []pool.Option{
		pool.WithEventBuffer(c.Pool.EventBuffer),
		pool.WithOrdering(ordering),
	}
}
