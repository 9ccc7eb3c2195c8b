// Package config loads the server configuration from built-in defaults, an optional
// YAML file and LOGSERVER_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"time"

	"github.com/Chichichkin/LogServer/internal/applog"
	"github.com/Chichichkin/LogServer/internal/logging"
	"github.com/Chichichkin/LogServer/internal/logging/queue"
	"github.com/Chichichkin/LogServer/internal/metrics"
	"github.com/Chichichkin/LogServer/internal/validation"
)

type Config struct {
	Server   ServerConfig               `koanf:"server"`
	LogsDir  string                     `koanf:"logs_dir" validate:"required"`
	Defaults logging.ChannelConfig      `koanf:"defaults"`
	Channels map[string]ChannelOverride `koanf:"channels" validate:"dive"`
	Flush    FlushConfig                `koanf:"flush"`
	HTTP     HTTPConfig                 `koanf:"http"`
	Sources  []SourceConfig             `koanf:"sources" validate:"dive"`
	Ingest   IngestConfig               `koanf:"ingest"`
	Logging  applog.Config              `koanf:"logging"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"gte=1,lte=65535"`
	Host            string        `koanf:"host"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// Addr returns the listen address of the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type FlushConfig struct {
	Tiers []metrics.Tier    `koanf:"tiers" validate:"min=1,dive"`
	Retry queue.RetryPolicy `koanf:"retry"`
}

type HTTPConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	MaxBodyBytes      int64         `koanf:"max_body_bytes" validate:"gt=0"`
}

// SourceConfig is a file tailed into a channel.
type SourceConfig struct {
	// Path may be a glob. New matches are picked up on every scan.
	Path        string        `koanf:"path" validate:"required"`
	Channel     string        `koanf:"channel" validate:"required,excludesall=/\\."`
	Level       logging.Level `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	IdleTimeout time.Duration `koanf:"idle_timeout" validate:"gte=0"`
	FromStart   bool          `koanf:"from_start"`
}

// IngestConfig tunes the file tailing sources.
type IngestConfig struct {
	ScanInterval   time.Duration `koanf:"scan_interval" validate:"gt=0"`
	ReportInterval time.Duration `koanf:"report_interval" validate:"gte=0"`
	Poll           bool          `koanf:"poll"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3333,
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
		},
		LogsDir: "./logs",
		Defaults: logging.ChannelConfig{
			MaxFileSize: 10 * 1024 * 1024,
			MaxFiles:    5,
			Format:      logging.FormatJSONL,
		},
		Channels: map[string]ChannelOverride{},
		Flush: FlushConfig{
			Tiers: metrics.DefaultTiers(),
			Retry: queue.DefaultRetryPolicy(),
		},
		HTTP: HTTPConfig{
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 0,
			RateLimitWindow:   time.Minute,
			MaxBodyBytes:      10 * 1024 * 1024,
		},
		Ingest: IngestConfig{
			ScanInterval:   5 * time.Second,
			ReportInterval: 30 * time.Second,
			Poll:           true,
		},
		Logging: applog.Config{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks field constraints and the channel overrides.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return err
	}
	for name := range c.Channels {
		if err := validation.Validator().Var(name, "required,excludesall=/\\."); err != nil {
			return fmt.Errorf("invalid channel name %q in channels section", name)
		}
		if err := validation.Struct(c.Channels[name].apply(c.Defaults)); err != nil {
			return fmt.Errorf("channel %s: %w", name, err)
		}
	}
	return nil
}
