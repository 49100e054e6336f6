// Package config loads server configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level server configuration.
type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Database DatabaseConfig `mapstructure:"database"`
}

// ServiceConfig holds the HTTP listener settings.
type ServiceConfig struct {
	Listen string `mapstructure:"listen"`
}

// DatabaseConfig holds the storage settings. Driver is one of postgres,
// mysql or sqlite.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// Load reads gaugetrack.yaml from the given directory, applying GAUGE_*
// environment overrides (GAUGE_DATABASE_DSN, GAUGE_SERVICE_LISTEN, ...).
// A missing file is not an error; defaults and environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("gaugetrack")
	v.SetConfigType("yaml")

	v.SetDefault("service.listen", ":8080")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "gaugetrack.db")

	v.SetEnvPrefix("GAUGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
