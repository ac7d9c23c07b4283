package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/artpar/iotedgehubdev/internal/shell/composecli"
	"github.com/artpar/iotedgehubdev/internal/shell/hostplatform"
	"github.com/artpar/iotedgehubdev/internal/shell/iothub"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Home    string        `mapstructure:"home"`
	Log     LogConfig     `mapstructure:"log"`
	Docker  DockerConfig  `mapstructure:"docker"`
	Compose ComposeConfig `mapstructure:"compose"`
	IoTHub  IoTHubConfig  `mapstructure:"iothub"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// ComposeConfig selects the compose tool. "docker compose" runs the plugin.
type ComposeConfig struct {
	Binary string `mapstructure:"binary"`
}

// IoTHubConfig holds the module identity client configuration.
type IoTHubConfig struct {
	APIVersion string        `mapstructure:"api_version"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
}

// Paths resolves the simulator directory, honoring the home override.
func (c *Config) Paths() (hostplatform.Paths, error) {
	if c.Home != "" {
		return hostplatform.NewPaths(c.Home), nil
	}
	home, err := hostplatform.DefaultHome()
	if err != nil {
		return hostplatform.Paths{}, err
	}
	return hostplatform.NewPaths(home), nil
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("home", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("docker.host", "")
	v.SetDefault("compose.binary", composecli.DefaultBinary)
	v.SetDefault("iothub.api_version", iothub.DefaultAPIVersion)
	v.SetDefault("iothub.token_ttl", iothub.DefaultTokenTTL.String())

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// A missing file falls back to defaults.
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("IOTEDGEHUBDEV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if strings.TrimSpace(cfg.Compose.Binary) == "" {
		return nil, fmt.Errorf("compose.binary: %w", composecli.ErrEmptyBinary)
	}
	if cfg.IoTHub.TokenTTL <= 0 {
		return nil, fmt.Errorf("iothub.token_ttl must be positive, got %s", cfg.IoTHub.TokenTTL)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger writing to w with the configured level and
// format.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
