package transfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate(244))
	assert.Equal(t, 242, cfg.FrameLength)
	assert.Equal(t, 8, cfg.WindowLength)
	assert.Equal(t, time.Second, cfg.AckTimeout)
	assert.Equal(t, time.Second, cfg.PacketTimeout)
	assert.Equal(t, 5*time.Second, cfg.ListWindow)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		mut  func(c *Config)
		mtu  int
		ok   bool
	}{
		{"defaults", func(c *Config) {}, 244, true},
		{"no mtu check", func(c *Config) { c.FrameLength = 1000 }, 0, true},
		{"frame too large for mtu", func(c *Config) { c.FrameLength = 243 }, 244, false},
		{"zero frame", func(c *Config) { c.FrameLength = 0 }, 244, false},
		{"zero window", func(c *Config) { c.WindowLength = 0 }, 244, false},
		{"widest window", func(c *Config) { c.WindowLength = MaxWindowLength }, 244, true},
		{"window aliases sequence numbers", func(c *Config) { c.WindowLength = MaxWindowLength + 1 }, 244, false},
		{"zero ack timeout", func(c *Config) { c.AckTimeout = 0 }, 244, false},
		{"negative packet timeout", func(c *Config) { c.PacketTimeout = -time.Second }, 244, false},
		{"zero list window", func(c *Config) { c.ListWindow = 0 }, 244, false},
		{"unbounded retries", func(c *Config) { c.UploadMaxTimeouts, c.DownloadMaxTimeouts = 0, 0 }, 244, true},
		{"negative retries", func(c *Config) { c.UploadMaxTimeouts = -1 }, 244, false},
		{"drop rate", func(c *Config) { c.DropRate = 0.5 }, 244, true},
		{"drop everything", func(c *Config) { c.DropRate = 1 }, 244, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mut(&cfg)
			err := cfg.Validate(tt.mtu)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}
