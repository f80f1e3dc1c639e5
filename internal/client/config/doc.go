// Package config loads runtime configuration for the blefs CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Flags must come before the command; parsing stops at the first
// positional argument, which is returned to the caller together with the
// rest of the command line.
//
// # JSON schema
//
// Durations use timex.Duration, so they can be strings like "1s" or integer
// nanoseconds. Absent keys keep their default:
//
//	{
//	  "address": "C0:FF:EE:00:00:01",
//	  "adapter": "hci0",
//	  "frame_length": 242,
//	  "window_length": 8,
//	  "ack_timeout": "1s",
//	  "packet_timeout": "1s",
//	  "list_window": "5s",
//	  "scan_window": "5s",
//	  "upload_max_timeouts": 20,
//	  "download_max_timeouts": 1,
//	  "db": "blefs.db",
//	  "history_keep": 1000
//	}
package config
