package config

import (
	"flag"
	"io"
)

// parseFlags populates cfg from the flags at the start of args and returns
// the positional arguments that follow them.
//
// Supported flags:
//
//	-a string             device address
//	-adapter string       local controller, e.g. hci0
//	-f int                file bytes per data frame
//	-w int                upload window length
//	-ack-timeout dur      upload acknowledgment timeout
//	-packet-timeout dur   download per-packet timeout
//	-list-window dur      directory listing window
//	-scan-window dur      discovery window
//	-upload-timeouts int  consecutive upload timeouts before giving up (0 = never)
//	-download-timeouts int consecutive download timeouts before aborting (0 = never)
//	-drop float           download fault injection rate
//	-seed uint            fault injection seed
//	-db string            history database path, empty disables history
//	-history-keep int     history records kept at startup (0 = all)
//	-v                    debug logging
//
// -c and -config are accepted and ignored here; parseJson handles them.
// Invalid values panic.
func parseFlags(cfg *Config, args []string) []string {
	fs := flag.NewFlagSet("blefs", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var ignored string
	fs.StringVar(&ignored, "c", "", "path to config file (short)")
	fs.StringVar(&ignored, "config", "", "path to config file")

	fs.StringVar(&cfg.Address, "a", cfg.Address, "device address")
	fs.StringVar(&cfg.Adapter, "adapter", cfg.Adapter, "bluetooth adapter")
	fs.IntVar(&cfg.FrameLength, "f", cfg.FrameLength, "file bytes per data frame")
	fs.IntVar(&cfg.WindowLength, "w", cfg.WindowLength, "upload window length")
	fs.DurationVar(&cfg.AckTimeout, "ack-timeout", cfg.AckTimeout, "upload acknowledgment timeout")
	fs.DurationVar(&cfg.PacketTimeout, "packet-timeout", cfg.PacketTimeout, "download per-packet timeout")
	fs.DurationVar(&cfg.ListWindow, "list-window", cfg.ListWindow, "directory listing window")
	fs.DurationVar(&cfg.ScanWindow, "scan-window", cfg.ScanWindow, "discovery window")
	fs.IntVar(&cfg.UploadMaxTimeouts, "upload-timeouts", cfg.UploadMaxTimeouts, "upload timeouts before giving up")
	fs.IntVar(&cfg.DownloadMaxTimeouts, "download-timeouts", cfg.DownloadMaxTimeouts, "download timeouts before aborting")
	fs.Float64Var(&cfg.DropRate, "drop", cfg.DropRate, "download fault injection rate")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "fault injection seed")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "history database path")
	fs.IntVar(&cfg.HistoryKeep, "history-keep", cfg.HistoryKeep, "history records kept at startup")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "debug logging")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
	return fs.Args()
}
