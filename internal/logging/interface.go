package logging

import (
	"strings"
	"time"
)

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

func (l Level) Valid() bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return true
	}
	return false
}

func (l Level) Upper() string {
	return strings.ToUpper(string(l))
}

// TimestampFormat is the layout of server generated timestamps: ISO 8601 in UTC with milliseconds.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Now returns the current time in TimestampFormat.
func Now() string {
	return time.Now().UTC().Format(TimestampFormat)
}

// LogEntry is created once at the ingestion boundary and is not modified afterwards.
type LogEntry struct {
	Channel   string         `json:"channel" validate:"required,max=128,excludesall=/\\."`
	Level     Level          `json:"level" validate:"oneof=debug info warn error"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp" validate:"required"`
	Data      map[string]any `json:"data,omitempty"`
}

type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatText  Format = "text"
)

// Ext returns the file extension used for the format.
func (f Format) Ext() string {
	if f == FormatJSONL {
		return "jsonl"
	}
	return "log"
}

type ChannelConfig struct {
	MaxFileSize int64  `koanf:"max_file_size" json:"maxFileSize" validate:"gt=0"`
	MaxFiles    int    `koanf:"max_files" json:"maxFiles" validate:"gte=1"`
	Format      Format `koanf:"format" json:"format" validate:"oneof=jsonl text"`
}

type FlushStrategy struct {
	Interval  time.Duration
	BatchSize int
}

// BatchWriter persists a batch of entries of a single channel and returns the bytes written.
type BatchWriter interface {
	WriteBatch(channel string, entries []LogEntry) (int, error)
}

type Enqueuer interface {
	Enqueue(entry LogEntry) error
}

type ChannelConfigProvider interface {
	ChannelConfig(channel string) ChannelConfig
}
