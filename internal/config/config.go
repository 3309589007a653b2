// Package config loads service configuration from a YAML file with
// environment variable overrides (prefix RENOVASJON_).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// Update interval bounds in hours.
	MinUpdateIntervalHours     = 1
	MaxUpdateIntervalHours     = 48
	DefaultUpdateIntervalHours = 12
)

// Config holds all configuration for the service.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	API     APIConfig     `mapstructure:"api"`
	Address AddressConfig `mapstructure:"address"`
	Update  UpdateConfig  `mapstructure:"update"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Host           string  `mapstructure:"host"`
	Port           int     `mapstructure:"port"`
	CacheSize      int     `mapstructure:"cache_size"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// AddressConfig identifies the address the service polls. The id comes
// from the search-address subcommand; name and municipality are kept for
// display only.
type AddressConfig struct {
	ID           string `mapstructure:"id"`
	Name         string `mapstructure:"name"`
	Municipality string `mapstructure:"municipality"`
}

type UpdateConfig struct {
	IntervalHours int `mapstructure:"interval_hours"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Interval returns the polling interval as a duration.
func (u UpdateConfig) Interval() time.Duration {
	return time.Duration(u.IntervalHours) * time.Hour
}

// ListenAddr returns the host:port the HTTP server binds to.
func (s ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from path and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("RENOVASJON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate enforces the bounded settings.
func (c *Config) Validate() error {
	if c.Address.ID == "" {
		return fmt.Errorf("address.id is required; run the search-address subcommand to resolve one")
	}
	if h := c.Update.IntervalHours; h < MinUpdateIntervalHours || h > MaxUpdateIntervalHours {
		return fmt.Errorf(
			"update.interval_hours must be between %d and %d, got %d",
			MinUpdateIntervalHours, MaxUpdateIntervalHours, h,
		)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid port, got %d", c.Server.Port)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cache_size", 256)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_limit_burst", 10)

	v.SetDefault("api.base_url", "https://kalender.renovasjonsportal.no/api")

	v.SetDefault("update.interval_hours", DefaultUpdateIntervalHours)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
