// Package config loads skycrane configuration from file, environment, and
// defaults, in that order of increasing precedence for the environment.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	DataDir string        `mapstructure:"data_dir"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
	State   StateConfig   `mapstructure:"state"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
	Deploy  DeployConfig  `mapstructure:"deploy"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Backup  BackupConfig  `mapstructure:"backup"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StateConfig struct {
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

type CatalogConfig struct {
	Dir string `mapstructure:"dir"`
}

type JobsConfig struct {
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	MaxDispatchPerSecond float64       `mapstructure:"max_dispatch_per_second"`
	CleanupMaxAge        time.Duration `mapstructure:"cleanup_max_age"`
}

type DeployConfig struct {
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type BackupConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// SnapshotPath is where the jobs snapshot lives under the data dir.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.DataDir, "jobs.json")
}

// JobLogDir is where per-job log files live under the data dir.
func (c *Config) JobLogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// StatePath resolves the local sqlite file path, defaulting under the data
// dir. Empty when State.URL points at a remote database: no local state
// file exists in that case, and callers that work on files must skip it.
func (c *Config) StatePath() string {
	if c.State.URL != "" {
		return ""
	}
	if c.State.Path != "" {
		return c.State.Path
	}
	return filepath.Join(c.DataDir, "state.db")
}

// Load reads configuration from the given file (optional), SKYCRANE_*
// environment variables, and built-in defaults.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SKYCRANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", defaultDataDir())

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "console")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("catalog.dir", "apps")

	v.SetDefault("jobs.poll_interval", "2s")
	v.SetDefault("jobs.max_dispatch_per_second", 10.0)
	v.SetDefault("jobs.cleanup_max_age", "168h")

	v.SetDefault("deploy.settle_delay", "10s")

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("backup.region", "us-east-1")
	v.SetDefault("backup.use_path_style", false)
}

func defaultDataDir() string {
	return filepath.Join(".skycrane")
}
