// Package config loads server configuration from file and environment
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every tunable of the revstore server. Values come
// from an optional revstore.yaml, overridden by REVSTORE_* variables.
type Config struct {
	DataDir string `mapstructure:"data_dir"`

	// Backend selection. Memory backends hold nothing across restarts
	// and exist for tests and local experiments.
	Store         string `mapstructure:"store"`          // badger | memory
	SearchBackend string `mapstructure:"search_backend"` // sqlite | memory
	BinaryBackend string `mapstructure:"binary_backend"` // filesystem | memory

	GrpcAddr string `mapstructure:"grpc_addr"`
	HTTPPort int    `mapstructure:"http_port"`

	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`
}

// Load reads configuration with defaults suitable for a single-node
// deployment. A missing config file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("data_dir", "./data")
	v.SetDefault("store", "badger")
	v.SetDefault("search_backend", "sqlite")
	v.SetDefault("binary_backend", "filesystem")
	v.SetDefault("grpc_addr", ":50051")
	v.SetDefault("http_port", 9090)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)

	v.SetEnvPrefix("REVSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("revstore")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/revstore")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown backend names early, before any store is
// opened.
func (c *Config) Validate() error {
	switch c.Store {
	case "badger", "memory":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store)
	}
	switch c.SearchBackend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown search backend %q", c.SearchBackend)
	}
	switch c.BinaryBackend {
	case "filesystem", "memory":
	default:
		return fmt.Errorf("unknown binary backend %q", c.BinaryBackend)
	}
	return nil
}
