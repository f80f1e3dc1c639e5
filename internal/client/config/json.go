package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/blefs/internal/flagx"
	"github.com/dmitrijs2005/blefs/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer
// fields tell an absent key from a zero value.
type JsonConfig struct {
	Address             *string         `json:"address"`
	Adapter             *string         `json:"adapter"`
	FrameLength         *int            `json:"frame_length"`
	WindowLength        *int            `json:"window_length"`
	AckTimeout          *timex.Duration `json:"ack_timeout"`
	PacketTimeout       *timex.Duration `json:"packet_timeout"`
	ListWindow          *timex.Duration `json:"list_window"`
	ScanWindow          *timex.Duration `json:"scan_window"`
	UploadMaxTimeouts   *int            `json:"upload_max_timeouts"`
	DownloadMaxTimeouts *int            `json:"download_max_timeouts"`
	DropRate            *float64        `json:"drop_rate"`
	Seed                *uint64         `json:"seed"`
	DBPath              *string         `json:"db"`
	HistoryKeep         *int            `json:"history_keep"`
	Verbose             *bool           `json:"verbose"`
}

// parseJson overlays cfg with the JSON file named by -c or -config in args.
// It panics on read or unmarshal errors.
func parseJson(cfg *Config, args []string) {
	path := flagx.ConfigPath(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}
	jc.apply(cfg)
}

func (jc *JsonConfig) apply(cfg *Config) {
	set(&cfg.Address, jc.Address)
	set(&cfg.Adapter, jc.Adapter)
	set(&cfg.FrameLength, jc.FrameLength)
	set(&cfg.WindowLength, jc.WindowLength)
	set(&cfg.UploadMaxTimeouts, jc.UploadMaxTimeouts)
	set(&cfg.DownloadMaxTimeouts, jc.DownloadMaxTimeouts)
	set(&cfg.DropRate, jc.DropRate)
	set(&cfg.Seed, jc.Seed)
	set(&cfg.DBPath, jc.DBPath)
	set(&cfg.HistoryKeep, jc.HistoryKeep)
	set(&cfg.Verbose, jc.Verbose)

	if jc.AckTimeout != nil {
		cfg.AckTimeout = jc.AckTimeout.Duration
	}
	if jc.PacketTimeout != nil {
		cfg.PacketTimeout = jc.PacketTimeout.Duration
	}
	if jc.ListWindow != nil {
		cfg.ListWindow = jc.ListWindow.Duration
	}
	if jc.ScanWindow != nil {
		cfg.ScanWindow = jc.ScanWindow.Duration
	}
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
