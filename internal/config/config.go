// Package config loads gateway configuration from the environment.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all gateway configuration.
type Config struct {
	// Logging
	LogLevel string `mapstructure:"log_level"`

	// Storage
	DatabasePath string `mapstructure:"database_path"`

	// HTTP
	ListenAddr string `mapstructure:"listen_addr"`

	// Session lifecycle
	ReconnectInterval   time.Duration `mapstructure:"reconnect_interval"`
	MaxReconnectRetries int           `mapstructure:"max_reconnect_retries"`
	MaxQRGenerations    int           `mapstructure:"max_qr_generations"`

	// Identification presented to the messaging network.
	DeviceName string `mapstructure:"device_name"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		LogLevel:            "info",
		DatabasePath:        "wamux.db",
		ListenAddr:          ":3000",
		ReconnectInterval:   0,
		MaxReconnectRetries: 5,
		MaxQRGenerations:    5,
		DeviceName:          "Wamux Gateway",
	}
}

// Load reads configuration from WAMUX_* environment variables, falling back
// to defaults for anything unset.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("wamux")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("database_path", cfg.DatabasePath)
	v.SetDefault("listen_addr", cfg.ListenAddr)
	v.SetDefault("reconnect_interval", cfg.ReconnectInterval)
	v.SetDefault("max_reconnect_retries", cfg.MaxReconnectRetries)
	v.SetDefault("max_qr_generations", cfg.MaxQRGenerations)
	v.SetDefault("device_name", cfg.DeviceName)

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
