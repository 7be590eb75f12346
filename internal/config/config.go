package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/conduit-lang/tuplizer/internal/orm/schema"
)

// Config represents the tuplizer configuration
type Config struct {
	Mapping MappingConfig `mapstructure:"mapping"`
	Mode    string        `mapstructure:"mode"`
	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Server  ServerConfig  `mapstructure:"server"`
}

// MappingConfig lists where mapping documents are read from
type MappingConfig struct {
	Paths []string `mapstructure:"paths"`
}

// StorageConfig selects the storage backend
type StorageConfig struct {
	Driver string      `mapstructure:"driver"`
	DSN    string      `mapstructure:"dsn"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig represents redis storage configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// NotifyConfig sizes the post-operation notifier
type NotifyConfig struct {
	Workers int `mapstructure:"workers"`
}

// ServerConfig represents the metadata inspector configuration
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Storage drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite3"
	DriverRedis    = "redis"
)

// FileName is the configuration file searched for without an explicit path
const FileName = "tuplizer"

// Load loads the configuration from path, or from tuplizer.yaml in the
// working directory when path is empty. Environment variables prefixed with
// TUPLIZER_ override file values.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("mapping.paths", []string{"mappings"})
	v.SetDefault("mode", schema.DynamicMap.String())
	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.prefix", "tuplizer:")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("notify.workers", 2)
	v.SetDefault("server.addr", ":8081")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TUPLIZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// relative mapping paths are resolved against the config file
	if used := v.ConfigFileUsed(); used != "" {
		base := filepath.Dir(used)
		for i, p := range cfg.Mapping.Paths {
			if !filepath.IsAbs(p) {
				cfg.Mapping.Paths[i] = filepath.Join(base, p)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RepresentationMode returns the configured mode
func (c *Config) RepresentationMode() schema.RepresentationMode {
	mode, err := schema.ParseRepresentationMode(c.Mode)
	if err != nil {
		return schema.DynamicMap
	}
	return mode
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if _, err := schema.ParseRepresentationMode(c.Mode); err != nil {
		return fmt.Errorf("mode: %w", err)
	}

	switch c.Storage.Driver {
	case DriverMemory, DriverRedis:
	case DriverPostgres, DriverPgx, DriverSQLite:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver %s", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage.driver must be one of memory, postgres, pgx, sqlite3, redis, got: %s", c.Storage.Driver)
	}

	if c.Storage.Driver == DriverRedis && c.Storage.Redis.Addr == "" {
		return fmt.Errorf("storage.redis.addr is required for driver redis")
	}
	if c.Notify.Workers < 1 {
		return fmt.Errorf("notify.workers must be at least 1, got: %d", c.Notify.Workers)
	}
	if len(c.Mapping.Paths) == 0 {
		return fmt.Errorf("mapping.paths must list at least one path")
	}
	return nil
}

// FindConfig walks up from the working directory to the nearest tuplizer.yaml
// or tuplizer.yml
func FindConfig() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, name := range []string{FileName + ".yaml", FileName + ".yml"} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s.yaml found", FileName)
		}
		dir = parent
	}
}
