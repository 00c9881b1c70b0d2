package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/codeshield-bridge/internal/serialmux"
)

const sampleConfig = `
serial:
  device: /dev/ttyUSB1
  baud_rate: 115200
  read_timeout: 5s
listen: 127.0.0.1:50207
database: history.db
debug_listen: localhost:8081
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
	Normalize(cfg)

	assert.Equal(t, "/dev/ttyUSB1", cfg.Serial.Device)
	assert.Equal(t, serialmux.PortOptions{
		BaudRate:    115200,
		DataBits:    8,
		StopBits:    1,
		Parity:      "N",
		ReadTimeout: 5 * time.Second,
	}, cfg.Serial.PortOptions)
	assert.Equal(t, "127.0.0.1:50207", cfg.Listen)
	assert.Equal(t, "history.db", cfg.Database)
	assert.Equal(t, "localhost:8081", cfg.DebugListen)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config")
}

func TestParseEmptyGivesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("  \n"))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
	Normalize(cfg)

	assert.Equal(t, DefaultDevice, cfg.Serial.Device)
	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, serialmux.DefaultBaudRate, cfg.Serial.BaudRate)
	assert.Equal(t, serialmux.DefaultReadTimeout, cfg.Serial.ReadTimeout)
	assert.Empty(t, cfg.Database)
	assert.Empty(t, cfg.DebugListen)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("listne: :1234\n"))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"zero", Config{}, ""},
		{"bad parity", Config{Serial: SerialConfig{PortOptions: serialmux.PortOptions{Parity: "X"}}}, "serial: unsupported parity"},
		{"bad stop bits", Config{Serial: SerialConfig{PortOptions: serialmux.PortOptions{StopBits: 3}}}, "serial: invalid stop bits"},
		{"listen without port", Config{Listen: "localhost"}, "listen:"},
		{"bad port", Config{Listen: ":notaport"}, "listen:"},
		{"debug same as listen", Config{Listen: ":9000", DebugListen: ":9000"}, "must differ"},
		{"database whitespace", Config{Database: " history.db"}, "surrounding whitespace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	assert.Error(t, Validate(nil))
}

func TestValidateDoesNotMutate(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, Validate(cfg))
	assert.Equal(t, &Config{}, cfg)
}
