package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/blefs/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()

	assert.Equal(t, transfer.DefaultConfig(), cfg.Transfer())
	assert.Equal(t, 5*time.Second, cfg.ScanWindow)
	assert.Equal(t, "blefs.db", cfg.DBPath)
	assert.Equal(t, 1000, cfg.HistoryKeep)
	assert.Empty(t, cfg.Address)
}

func TestLoadConfig_FlagsAndRest(t *testing.T) {
	cfg, rest := LoadConfig([]string{
		"-a", "C0:FF:EE:00:00:01", "-adapter", "hci1",
		"-f", "100", "-w", "4",
		"-ack-timeout", "250ms", "-packet-timeout", "2s",
		"-list-window", "3s", "-scan-window", "10s",
		"-upload-timeouts", "0", "-download-timeouts", "3",
		"-drop", "0.25", "-seed", "7", "-db", "", "-history-keep", "0", "-v",
		"read", "0", "0", "/log/a.csv",
	})

	assert.Equal(t, []string{"read", "0", "0", "/log/a.csv"}, rest)
	assert.Equal(t, "C0:FF:EE:00:00:01", cfg.Address)
	assert.Equal(t, "hci1", cfg.Adapter)
	assert.Equal(t, 10*time.Second, cfg.ScanWindow)
	assert.Empty(t, cfg.DBPath)
	assert.Zero(t, cfg.HistoryKeep)
	assert.True(t, cfg.Verbose)

	assert.Equal(t, transfer.Config{
		FrameLength:         100,
		WindowLength:        4,
		AckTimeout:          250 * time.Millisecond,
		PacketTimeout:       2 * time.Second,
		ListWindow:          3 * time.Second,
		UploadMaxTimeouts:   0,
		DownloadMaxTimeouts: 3,
		DropRate:            0.25,
		Seed:                7,
	}, cfg.Transfer())
}

func TestLoadConfig_NoArgs(t *testing.T) {
	cfg, rest := LoadConfig(nil)
	assert.Empty(t, rest)
	assert.Equal(t, transfer.DefaultConfig(), cfg.Transfer())
}

func TestLoadConfig_JSONThenFlags(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"address":        "AA:BB:CC:DD:EE:FF",
		"window_length":  16,
		"ack_timeout":    "500ms",
		"packet_timeout": 2000000000,
		"db":             "/tmp/h.db",
		"history_keep":   50,
	})

	cfg, rest := LoadConfig([]string{"-c", path, "-w", "2", "ls", "/"})
	assert.Equal(t, []string{"ls", "/"}, rest)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", cfg.Address)
	assert.Equal(t, 2, cfg.WindowLength, "flags override json")
	assert.Equal(t, 500*time.Millisecond, cfg.AckTimeout)
	assert.Equal(t, 2*time.Second, cfg.PacketTimeout)
	assert.Equal(t, "/tmp/h.db", cfg.DBPath)
	assert.Equal(t, 50, cfg.HistoryKeep)
	assert.Equal(t, 242, cfg.FrameLength, "absent keys keep defaults")
}

func TestParseJson_ZeroValuesApply(t *testing.T) {
	path := writeTempJSON(t, map[string]any{"upload_max_timeouts": 0, "db": ""})
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, []string{"-config=" + path})
	assert.Zero(t, cfg.UploadMaxTimeouts)
	assert.Empty(t, cfg.DBPath)
}

func TestParseJson_Panics(t *testing.T) {
	assert.Panics(t, func() {
		parseJson(&Config{}, []string{"-c", filepath.Join(t.TempDir(), "missing.json")})
	})

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"ack_timeout": "soon"}`), 0o600))
	assert.Panics(t, func() { parseJson(&Config{}, []string{"-c", bad}) })
}

func TestParseFlags_InvalidPanics(t *testing.T) {
	assert.Panics(t, func() { parseFlags(&Config{}, []string{"-w", "many"}) })
	assert.Panics(t, func() { parseFlags(&Config{}, []string{"-unknown"}) })
}
