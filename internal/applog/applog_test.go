package applog

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInit_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Info().Msg("hidden")
	Warn().Str("channel", "app").Msg("visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"channel":"app"`)
	assert.Contains(t, out, `"level":"warn"`)
}

func TestParseLevel_DefaultsToInfo(t *testing.T) {
	assert.Equal(t, "info", parseLevel("bogus").String())
	assert.Equal(t, "warn", parseLevel("WARNING").String())
	assert.Equal(t, "disabled", parseLevel("disabled").String())
}

func TestSlogHandler_WritesThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	logger := slog.New(NewSlogHandler()).WithGroup("svc").With("name", "http")
	logger.Warn("restarting", "attempt", 2)

	out := buf.String()
	assert.Contains(t, out, `"message":"restarting"`)
	assert.Contains(t, out, `"svc.name":"http"`)
	assert.Contains(t, out, `"svc.attempt":2`)
}
