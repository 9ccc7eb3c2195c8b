package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chichichkin/LogServer/internal/logging"
)

func ptr[T any](v T) *T { return &v }

var testDefaults = logging.ChannelConfig{MaxFileSize: 1000, MaxFiles: 5, Format: logging.FormatJSONL}

func TestChannels_MergesOverridesOntoDefaults(t *testing.T) {
	c := NewChannels(testDefaults, map[string]ChannelOverride{
		"audit": {MaxFiles: ptr(20)},
	})

	assert.Equal(t, testDefaults, c.ChannelConfig("app"))
	assert.Equal(t, logging.ChannelConfig{MaxFileSize: 1000, MaxFiles: 20, Format: logging.FormatJSONL}, c.ChannelConfig("audit"))
}

func TestChannels_SetChannelConfigAccumulates(t *testing.T) {
	c := NewChannels(testDefaults, nil)

	cfg, err := c.SetChannelConfig("app", ChannelOverride{Format: ptr(logging.FormatText)})
	require.NoError(t, err)
	assert.Equal(t, logging.FormatText, cfg.Format)

	cfg, err = c.SetChannelConfig("app", ChannelOverride{MaxFileSize: ptr(int64(50))})
	require.NoError(t, err)
	assert.Equal(t, logging.ChannelConfig{MaxFileSize: 50, MaxFiles: 5, Format: logging.FormatText}, cfg)
	assert.Equal(t, cfg, c.ChannelConfig("app"))
	assert.Equal(t, []string{"app"}, c.Configured())
}

func TestChannels_SetChannelConfigRejectsInvalid(t *testing.T) {
	c := NewChannels(testDefaults, nil)

	_, err := c.SetChannelConfig("app", ChannelOverride{MaxFiles: ptr(0)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app")
	assert.Equal(t, testDefaults, c.ChannelConfig("app"))
	assert.Empty(t, c.Configured())
}

func TestChannels_ConcurrentAccess(t *testing.T) {
	c := NewChannels(testDefaults, nil)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_, _ = c.SetChannelConfig("app", ChannelOverride{MaxFiles: ptr(n)})
		}(i)
		go func() {
			defer wg.Done()
			_ = c.ChannelConfig("app")
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, c.ChannelConfig("app").MaxFiles, 1)
	assert.Equal(t, testDefaults, c.ChannelConfig("other"))
}
