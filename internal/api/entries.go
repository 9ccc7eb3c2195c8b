package api

import (
	"errors"
	"time"

	"github.com/goccy/go-json"

	"github.com/Chichichkin/LogServer/internal/logging"
	"github.com/Chichichkin/LogServer/internal/validation"
)

var errMissingMessage = errors.New("message is required")

type logRequest struct {
	Channel   string         `json:"channel"`
	Level     string         `json:"level"`
	Message   *string        `json:"message"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// parseEntry turns one request object into a LogEntry. An unknown or missing level
// becomes info and a missing timestamp becomes now.
func parseEntry(raw json.RawMessage, now time.Time) (logging.LogEntry, error) {
	var req logRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return logging.LogEntry{}, err
	}
	if req.Message == nil {
		return logging.LogEntry{}, errMissingMessage
	}

	level := logging.Level(req.Level)
	if !level.Valid() {
		level = logging.LevelInfo
	}
	timestamp := req.Timestamp
	if timestamp == "" {
		timestamp = now.UTC().Format(logging.TimestampFormat)
	}

	entry := logging.LogEntry{
		Channel:   req.Channel,
		Level:     level,
		Message:   *req.Message,
		Timestamp: timestamp,
		Data:      req.Data,
	}
	if err := validation.Struct(entry); err != nil {
		return logging.LogEntry{}, err
	}
	return entry, nil
}
