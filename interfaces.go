package wxbridge

import (
	"time"
)

// SerialPort is the subset of go.bug.st/serial.Port the bridge uses,
// narrowed so tests can substitute a scripted port.
type SerialPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	ResetOutputBuffer() error
	Drain() error
}

// TelemetrySink receives converted telemetry messages. Each send is
// independent and fire-and-forget; no acknowledgement is awaited.
type TelemetrySink interface {
	SendWind(*WindMessage) error
	SendWeather(*WeatherMessage) error
	SendGPS(*GPSMessage) error
	SendAttitude(*AttitudeMessage) error
}

// RawSink receives formatted raw sentence lines in pass-through mode.
type RawSink interface {
	Append(line string)
}
