package wxbridge

import (
	"time"
)

// Category identifies a telemetry sample category for store updates
// and downstream rate gating.
type Category int

const (
	CategoryNone Category = iota
	CategoryWind
	CategoryWeather
	CategoryGPS
	CategoryCompass
	CategoryTime
)

func (c Category) String() string {
	switch c {
	case CategoryWind:
		return "wind"
	case CategoryWeather:
		return "weather"
	case CategoryGPS:
		return "gps"
	case CategoryCompass:
		return "compass"
	case CategoryTime:
		return "time"
	}
	return "none"
}

// WindSample is decoded from $WIMWV.
type WindSample struct {
	AngleDeg  float64
	Reference string // R = relative, T = true
	Speed     float64
	SpeedUnit string // N = knots, K = km/h, M = m/s
	Valid     bool   // status field A
}

// WeatherSample is decoded from the $WIMDA meteorological composite.
// Fields are nil until the device reports them.
type WeatherSample struct {
	PressureInHg     *float64
	PressureBars     *float64
	AirTempC         *float64
	WaterTempC       *float64
	RelativeHumidity *float64
	DewPointC        *float64
}

// GPSSample merges $GPRMC (position/velocity) and $GPGGA (altitude,
// HDOP, satellites), which arrive as separate sentences.
type GPSSample struct {
	Latitude   float64
	Longitude  float64
	SpeedKnots float64
	TrackDeg   float64
	Fix        int // 0 = none, 1 = 2D, 2 = 3D
	HasFix     bool

	AltitudeM   float64
	HDOP        float64
	Satellites  int
	HasAltitude bool
}

// CompassSample is decoded from $HCHDT.
type CompassSample struct {
	HeadingDeg float64
	Reference  string // T = true
}

// TimeSample is decoded from $GPZDA.
type TimeSample struct {
	UTCTime string
	Day     string
	Month   string
	Year    string
}

// TelemetryStore holds the latest known sample per category plus
// metadata about the last successfully decoded line. Updates replace
// whole category values; only the GPS composite merges additively.
// Access is serialized by the Bridge mutex.
type TelemetryStore struct {
	Wind    *WindSample
	Weather *WeatherSample
	GPS     *GPSSample
	Compass *CompassSample
	Clock   *TimeSample

	LastSentence string
	LastRaw      string
	UpdatedAt    time.Time
}

// Clear drops all samples and metadata. Called whenever the bridge
// transitions away from the connected state.
func (s *TelemetryStore) Clear() {
	*s = TelemetryStore{}
}

// Copy returns a deep copy safe to hand to external readers.
func (s *TelemetryStore) Copy() TelemetryStore {
	c := TelemetryStore{
		LastSentence: s.LastSentence,
		LastRaw:      s.LastRaw,
		UpdatedAt:    s.UpdatedAt,
	}
	if s.Wind != nil {
		w := *s.Wind
		c.Wind = &w
	}
	if s.Weather != nil {
		w := *s.Weather
		w.PressureInHg = copyFloat(s.Weather.PressureInHg)
		w.PressureBars = copyFloat(s.Weather.PressureBars)
		w.AirTempC = copyFloat(s.Weather.AirTempC)
		w.WaterTempC = copyFloat(s.Weather.WaterTempC)
		w.RelativeHumidity = copyFloat(s.Weather.RelativeHumidity)
		w.DewPointC = copyFloat(s.Weather.DewPointC)
		c.Weather = &w
	}
	if s.GPS != nil {
		g := *s.GPS
		c.GPS = &g
	}
	if s.Compass != nil {
		h := *s.Compass
		c.Compass = &h
	}
	if s.Clock != nil {
		t := *s.Clock
		c.Clock = &t
	}
	return c
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}

// Downstream message payloads. Field layouts are the wire contract;
// the forwarder encodes them little-endian behind a type header.

type WindMessage struct {
	DirectionDeg float32
	SpeedMS      float32
	SpeedZ       float32
}

type WeatherMessage struct {
	TemperatureC float32
	PressureHPa  float32
	Humidity     float32
	WindDirDeg   float32
	WindSpeed    float32
	WindSpeedZ   float32
}

type GPSMessage struct {
	TimeUsec    uint64
	FixType     uint8
	LatitudeE7  int32
	LongitudeE7 int32
	AltitudeMM  int32
	EPH         uint16
	EPV         uint16
	VelCMS      uint16
	CourseCDeg  uint16
	Satellites  uint8
}

type AttitudeMessage struct {
	TimeBootMS uint32
	Roll       float32
	Pitch      float32
	Yaw        float32
	RollSpeed  float32
	PitchSpeed float32
	YawSpeed   float32
}

// GPS fix ordinals carried in GPSMessage.FixType.
const (
	FixTypeNone uint8 = 0
	FixType2D   uint8 = 2
	FixType3D   uint8 = 3
)
