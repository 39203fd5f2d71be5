package wxbridge

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 4800, cfg.DefaultBaud)
	assert.Equal(t, 38400, cfg.HighBaud)
	assert.Equal(t, 5*time.Second, cfg.ReconnectInterval.Duration)
	assert.NotEmpty(t, cfg.Device.SetupCommands)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	config := `
Port = "/dev/ttyAMA0"
HighBaud = 19200
ReconnectInterval = "10s"
PassThrough = true

[Device]
SetupCommands = ["$PAMTC,EN,MWV,1"]

[Downstream]
Server = "10.0.0.5"
Port = 14551
`
	cfg, err := LoadConfigFromReader(bytes.NewBufferString(config))
	assert.NoError(t, err)
	assert.Equal(t, "/dev/ttyAMA0", cfg.Port)
	assert.Equal(t, 19200, cfg.HighBaud)
	// untouched fields keep their defaults
	assert.Equal(t, 4800, cfg.DefaultBaud)
	assert.Equal(t, 10*time.Second, cfg.ReconnectInterval.Duration)
	assert.True(t, cfg.PassThrough)
	assert.Equal(t, []string{"$PAMTC,EN,MWV,1"}, cfg.Device.SetupCommands)
	assert.Equal(t, "10.0.0.5", cfg.Downstream.Server)
	assert.Equal(t, 14551, cfg.Downstream.Port)
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	_, err := LoadConfigFromReader(bytes.NewBufferString(`ReconnectInterval = "soon"`))
	assert.Error(t, err)
}

func TestLoadConfigRejectsBadBaud(t *testing.T) {
	_, err := LoadConfigFromReader(bytes.NewBufferString(`HighBaud = 0`))
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/does/not/exist.toml")
	assert.Error(t, err)
}
