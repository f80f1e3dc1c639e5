package transfer

import (
	"fmt"
	"time"
)

// MaxWindowLength bounds the send window so that 8-bit sequence numbers of
// frames that can be in flight together never collide.
const MaxWindowLength = 128

// frameOverhead is the opcode byte plus the sequence byte of a data frame.
const frameOverhead = 2

// Config tunes one session. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	// FrameLength is the number of file bytes per data frame.
	FrameLength int
	// WindowLength is the number of unacknowledged frames Upload keeps in flight.
	WindowLength int
	// AckTimeout bounds each wait for an acknowledgment during Upload.
	AckTimeout time.Duration
	// PacketTimeout bounds each wait for a data frame during Download.
	PacketTimeout time.Duration
	// ListWindow is how long ListDirectory collects entries.
	ListWindow time.Duration

	// UploadMaxTimeouts is the number of consecutive acknowledgment timeouts
	// after which Upload gives up. Zero retries forever.
	UploadMaxTimeouts int
	// DownloadMaxTimeouts is the number of consecutive packet timeouts after
	// which Download aborts. Zero waits forever.
	DownloadMaxTimeouts int

	// DropRate makes Download pretend that this fraction of otherwise
	// acceptable frames never arrived. Used to exercise the device's retry
	// logic; zero disables it.
	DropRate float64
	// Seed seeds the DropRate generator.
	Seed uint64
}

// DefaultConfig returns the protocol defaults.
func DefaultConfig() Config {
	return Config{
		FrameLength:         242,
		WindowLength:        8,
		AckTimeout:          time.Second,
		PacketTimeout:       time.Second,
		ListWindow:          5 * time.Second,
		UploadMaxTimeouts:   20,
		DownloadMaxTimeouts: 1,
	}
}

// Validate checks c against the link's MTU. A non-positive mtu skips the
// frame size check.
func (c Config) Validate(mtu int) error {
	switch {
	case c.FrameLength < 1:
		return fmt.Errorf("%w: frame length %d", ErrInvalidConfig, c.FrameLength)
	case c.WindowLength < 1 || c.WindowLength > MaxWindowLength:
		return fmt.Errorf("%w: window length %d not in [1,%d]", ErrInvalidConfig, c.WindowLength, MaxWindowLength)
	case c.AckTimeout <= 0, c.PacketTimeout <= 0, c.ListWindow <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	case c.UploadMaxTimeouts < 0, c.DownloadMaxTimeouts < 0:
		return fmt.Errorf("%w: negative retry bound", ErrInvalidConfig)
	case c.DropRate < 0 || c.DropRate >= 1:
		return fmt.Errorf("%w: drop rate %v not in [0,1)", ErrInvalidConfig, c.DropRate)
	}
	if mtu > 0 && c.FrameLength+frameOverhead > mtu {
		return fmt.Errorf("%w: frame length %d does not fit mtu %d", ErrInvalidConfig, c.FrameLength, mtu)
	}
	return nil
}
