package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the base name of the project configuration file
const FileName = "metagraph.yaml"

// Supported SQL drivers for store datasources
var supportedDrivers = map[string]bool{
	"sqlite3":  true,
	"pgx":      true,
	"postgres": true,
}

// Config represents the metagraph configuration
type Config struct {
	Metadata  MetadataConfig  `mapstructure:"metadata" yaml:"metadata"`
	Stores    []StoreConfig   `mapstructure:"stores" yaml:"stores,omitempty"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	DevServer DevServerConfig `mapstructure:"devserver" yaml:"devserver"`
	Redis     RedisConfig     `mapstructure:"redis" yaml:"redis"`

	// Path is the config file that was read, empty when running on defaults
	Path string `mapstructure:"-" yaml:"-"`
}

// MetadataConfig lists the classes to load
type MetadataConfig struct {
	Classes          []string `mapstructure:"classes" yaml:"classes"`
	SystemInterfaces []string `mapstructure:"system_interfaces" yaml:"system_interfaces,omitempty"`
}

// StoreConfig declares an additional storage tier backed by a SQL datasource
type StoreConfig struct {
	Name   string `mapstructure:"name" yaml:"name"`
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DevServerConfig configures the bundler supervisor and the reload server
type DevServerConfig struct {
	Addr           string            `mapstructure:"addr" yaml:"addr"`
	Dir            string            `mapstructure:"dir" yaml:"dir"`
	Command        []string          `mapstructure:"command" yaml:"command,omitempty"`
	BundlerConfig  string            `mapstructure:"bundler_config" yaml:"bundler_config"`
	BundlerPort    int               `mapstructure:"bundler_port" yaml:"bundler_port"`
	Options        string            `mapstructure:"options" yaml:"options,omitempty"`
	Env            map[string]string `mapstructure:"env" yaml:"env,omitempty"`
	SuccessPattern string            `mapstructure:"success_pattern" yaml:"success_pattern"`
	FailurePattern string            `mapstructure:"failure_pattern" yaml:"failure_pattern"`
	StartTimeout   time.Duration     `mapstructure:"start_timeout" yaml:"start_timeout"`
	Debounce       time.Duration     `mapstructure:"debounce" yaml:"debounce"`
}

// RedisConfig configures snapshot publishing
type RedisConfig struct {
	Addr    string `mapstructure:"addr" yaml:"addr,omitempty"`
	Channel string `mapstructure:"channel" yaml:"channel"`
	Key     string `mapstructure:"key" yaml:"key"`
}

// Load reads metagraph.yaml from path, or from the working directory when path is
// empty. A missing default file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("devserver.addr", "localhost:8090")
	v.SetDefault("devserver.dir", ".")
	v.SetDefault("devserver.bundler_config", "webpack.config.js")
	v.SetDefault("devserver.bundler_port", 8080)
	v.SetDefault("devserver.success_pattern", `: Compiled\.`)
	v.SetDefault("devserver.failure_pattern", `: Failed to compile\.`)
	v.SetDefault("devserver.start_timeout", "2m")
	v.SetDefault("devserver.debounce", "200ms")
	v.SetDefault("redis.channel", "metagraph:reload")
	v.SetDefault("redis.key", "metagraph:snapshot")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment overrides, e.g. METAGRAPH_LOG_LEVEL
	v.SetEnvPrefix("METAGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.Path = v.ConfigFileUsed()

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// FindProjectRoot walks up from dir until it finds a metagraph.yaml
func FindProjectRoot(dir string) (string, error) {
	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not in a metagraph project (no %s found)", FileName)
		}
		dir = parent
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Stores))
	for i, store := range cfg.Stores {
		if store.Name == "" {
			return fmt.Errorf("stores[%d]: name is required", i)
		}
		if seen[store.Name] {
			return fmt.Errorf("stores[%d]: duplicate store name %q", i, store.Name)
		}
		seen[store.Name] = true

		if !supportedDrivers[store.Driver] {
			return fmt.Errorf("stores[%d]: unsupported driver %q (use sqlite3, pgx or postgres)", i, store.Driver)
		}
		if store.DSN == "" {
			return fmt.Errorf("stores[%d]: dsn is required", i)
		}
	}

	switch cfg.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got: %s", cfg.Log.Format)
	}

	if cfg.DevServer.BundlerPort <= 0 || cfg.DevServer.BundlerPort > 65535 {
		return fmt.Errorf("devserver.bundler_port out of range: %d", cfg.DevServer.BundlerPort)
	}
	return nil
}
