package config

import (
	"time"

	"github.com/dmitrijs2005/blefs/internal/transfer"
)

// Config holds runtime settings for the blefs CLI.
type Config struct {
	// Address is the device to talk to. Only scan works without it.
	Address string
	// Adapter names the local Bluetooth controller; empty picks the first.
	Adapter string

	FrameLength   int
	WindowLength  int
	AckTimeout    time.Duration
	PacketTimeout time.Duration
	ListWindow    time.Duration
	ScanWindow    time.Duration

	UploadMaxTimeouts   int
	DownloadMaxTimeouts int

	// DropRate and Seed drive download fault injection.
	DropRate float64
	Seed     uint64

	// DBPath is the history database. Empty disables history.
	DBPath string
	// HistoryKeep is how many history records survive startup maintenance.
	// Zero keeps everything.
	HistoryKeep int
	Verbose     bool
}

// LoadDefaults populates c with the protocol defaults.
func (c *Config) LoadDefaults() {
	t := transfer.DefaultConfig()
	c.FrameLength = t.FrameLength
	c.WindowLength = t.WindowLength
	c.AckTimeout = t.AckTimeout
	c.PacketTimeout = t.PacketTimeout
	c.ListWindow = t.ListWindow
	c.ScanWindow = 5 * time.Second
	c.UploadMaxTimeouts = t.UploadMaxTimeouts
	c.DownloadMaxTimeouts = t.DownloadMaxTimeouts
	c.DBPath = "blefs.db"
	c.HistoryKeep = 1000
}

// Transfer returns the engine settings.
func (c *Config) Transfer() transfer.Config {
	return transfer.Config{
		FrameLength:         c.FrameLength,
		WindowLength:        c.WindowLength,
		AckTimeout:          c.AckTimeout,
		PacketTimeout:       c.PacketTimeout,
		ListWindow:          c.ListWindow,
		UploadMaxTimeouts:   c.UploadMaxTimeouts,
		DownloadMaxTimeouts: c.DownloadMaxTimeouts,
		DropRate:            c.DropRate,
		Seed:                c.Seed,
	}
}

// LoadConfig constructs a Config from args (without the program name):
// defaults first, then the JSON file if one is named, then flags. It
// returns the positional arguments that follow the flags.
func LoadConfig(args []string) (*Config, []string) {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	rest := parseFlags(cfg, args)
	return cfg, rest
}
