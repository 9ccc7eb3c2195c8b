package config

import (
	"fmt"
	"sync"

	"github.com/Chichichkin/LogServer/internal/logging"
	"github.com/Chichichkin/LogServer/internal/validation"
)

// ChannelOverride holds the fields a channel sets on top of the defaults. Nil means inherited.
type ChannelOverride struct {
	MaxFileSize *int64          `koanf:"max_file_size" json:"maxFileSize,omitempty" validate:"omitempty,gt=0"`
	MaxFiles    *int            `koanf:"max_files" json:"maxFiles,omitempty" validate:"omitempty,gte=1"`
	Format      *logging.Format `koanf:"format" json:"format,omitempty" validate:"omitempty,oneof=jsonl text"`
}

func (o ChannelOverride) apply(cfg logging.ChannelConfig) logging.ChannelConfig {
	if o.MaxFileSize != nil {
		cfg.MaxFileSize = *o.MaxFileSize
	}
	if o.MaxFiles != nil {
		cfg.MaxFiles = *o.MaxFiles
	}
	if o.Format != nil {
		cfg.Format = *o.Format
	}
	return cfg
}

func (o ChannelOverride) merge(next ChannelOverride) ChannelOverride {
	if next.MaxFileSize != nil {
		o.MaxFileSize = next.MaxFileSize
	}
	if next.MaxFiles != nil {
		o.MaxFiles = next.MaxFiles
	}
	if next.Format != nil {
		o.Format = next.Format
	}
	return o
}

// Channels serves per-channel configuration to the writer. Overrides set at runtime
// live in memory only.
type Channels struct {
	mu        sync.RWMutex
	defaults  logging.ChannelConfig
	overrides map[string]ChannelOverride
}

func NewChannels(defaults logging.ChannelConfig, overrides map[string]ChannelOverride) *Channels {
	c := &Channels{
		defaults:  defaults,
		overrides: make(map[string]ChannelOverride, len(overrides)),
	}
	for name, o := range overrides {
		c.overrides[name] = o
	}
	return c
}

// ChannelConfig returns the defaults with the channel's overrides applied.
func (c *Channels) ChannelConfig(channel string) logging.ChannelConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.overrides[channel].apply(c.defaults)
}

// SetChannelConfig merges update into the channel's overrides and returns the resulting
// configuration. Nothing is stored when the result is invalid.
func (c *Channels) SetChannelConfig(channel string, update ChannelOverride) (logging.ChannelConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	merged := c.overrides[channel].merge(update)
	cfg := merged.apply(c.defaults)
	if err := validation.Struct(cfg); err != nil {
		return logging.ChannelConfig{}, fmt.Errorf("invalid config for channel %s: %w", channel, err)
	}
	c.overrides[channel] = merged
	return cfg, nil
}

// Configured lists the channels that have overrides.
func (c *Channels) Configured() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.overrides))
	for name := range c.overrides {
		names = append(names, name)
	}
	return names
}
