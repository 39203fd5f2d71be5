package wxbridge

import (
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Duration wraps time.Duration so intervals can be written as "5s" in
// the TOML config.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	d.Duration = v
	return err
}

// DeviceConfig is the vendor/firmware-dependent part of the setup: the
// command sequence run after baud negotiation. Individual command
// failures are tolerated; the list is configuration, not code.
type DeviceConfig struct {
	SetupCommands []string
}

// DownstreamConfig addresses the UDP telemetry consumer.
type DownstreamConfig struct {
	Server string
	Port   int
}

type Config struct {
	Port              string
	DefaultBaud       int
	HighBaud          int
	ReconnectInterval Duration
	PassThrough       bool

	Device     DeviceConfig
	Downstream DownstreamConfig
}

func DefaultConfig() Config {
	return Config{
		Port:              "/dev/ttyUSB0",
		DefaultBaud:       4800,
		HighBaud:          38400,
		ReconnectInterval: Duration{5 * time.Second},
		Device: DeviceConfig{
			SetupCommands: []string{
				"$PAMTC,EN,ALL,1",
				"$PAMTC,OPTION,HEATERCTRL,1",
				"$PAMTX,1,1",
				"$PAMTX,2,1",
				"$PAMTX,3,1",
				"$PAMTX,0,1",
			},
		},
		Downstream: DownstreamConfig{
			Server: "127.0.0.1",
			Port:   14550,
		},
	}
}

func LoadConfig(fileName string) (*Config, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open config file %s", fileName)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader decodes TOML over the defaults, so a config
// file only needs to state what differs.
func LoadConfigFromReader(configReader io.Reader) (*Config, error) {
	config := DefaultConfig()
	if _, err := toml.NewDecoder(configReader).Decode(&config); err != nil {
		return nil, errors.Wrap(err, "unable to load bridge configuration")
	}
	if config.DefaultBaud <= 0 || config.HighBaud <= 0 {
		return nil, errors.New("baud rates must be positive")
	}
	return &config, nil
}
