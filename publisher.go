package wxbridge

import (
	"math"
	"time"

	log "github.com/sirupsen/logrus"
)

// Unit conversion factors applied before downstream publishes.
const (
	knotsToMS = 0.514444
	kmhToMS   = 0.277778
	inHgToHPa = 33.8639
	barsToHPa = 1000.0
	degToRad  = math.Pi / 180.0
)

// Per-category minimum publish intervals. The sensor emits faster than
// the consumer wants; sends inside the window are dropped, not queued.
const (
	windSendInterval     = 200 * time.Millisecond
	weatherSendInterval  = time.Second
	gpsSendInterval      = 200 * time.Millisecond
	attitudeSendInterval = 200 * time.Millisecond
)

type rateGate struct {
	interval time.Duration
	lastSent time.Time
}

func (g *rateGate) open(now time.Time) bool {
	return g.lastSent.IsZero() || now.Sub(g.lastSent) >= g.interval
}

func (g *rateGate) mark(now time.Time) {
	g.lastSent = now
}

// Publisher converts TelemetryStore contents into downstream sink
// calls under independent per-category rate gates. A failed send is
// logged and never blocks the next decode cycle or another category.
type Publisher struct {
	sink  TelemetrySink
	gates map[Category]*rateGate
	start time.Time

	// to allow testing
	now func() time.Time
}

func NewPublisher(sink TelemetrySink) *Publisher {
	return &Publisher{
		sink: sink,
		gates: map[Category]*rateGate{
			CategoryWind:    {interval: windSendInterval},
			CategoryWeather: {interval: weatherSendInterval},
			CategoryGPS:     {interval: gpsSendInterval},
			CategoryCompass: {interval: attitudeSendInterval},
		},
		start: time.Now(),
		now:   time.Now,
	}
}

// Publish attempts a downstream send for the category just updated in
// the store. Callers invoke it once per decoded sentence.
func (p *Publisher) Publish(cat Category, store *TelemetryStore) {
	if p.sink == nil {
		return
	}
	switch cat {
	case CategoryWind:
		p.publishWind(store)
	case CategoryWeather:
		p.publishWeather(store)
	case CategoryGPS:
		p.publishGPS(store)
	case CategoryCompass:
		p.publishAttitude(store)
	}
}

func (p *Publisher) publishWind(store *TelemetryStore) {
	wind := store.Wind
	if wind == nil || !wind.Valid {
		return
	}
	gate := p.gates[CategoryWind]
	now := p.now()
	if !gate.open(now) {
		return
	}
	gate.mark(now)

	speed := wind.Speed
	switch wind.SpeedUnit {
	case "N":
		speed *= knotsToMS
	case "K":
		speed *= kmhToMS
	}
	// M is already m/s

	err := p.sink.SendWind(&WindMessage{
		DirectionDeg: float32(wind.AngleDeg),
		SpeedMS:      float32(speed),
	})
	if err != nil {
		log.WithField("err", err).Error("unable to send wind message")
	}
}

func (p *Publisher) publishWeather(store *TelemetryStore) {
	met := store.Weather
	if met == nil {
		return
	}
	gate := p.gates[CategoryWeather]
	now := p.now()
	if !gate.open(now) {
		return
	}
	gate.mark(now)

	// absent fields are published as zero rather than skipped
	var pressure float64
	if met.PressureBars != nil {
		pressure = *met.PressureBars * barsToHPa
	} else if met.PressureInHg != nil {
		pressure = *met.PressureInHg * inHgToHPa
	}

	msg := &WeatherMessage{
		PressureHPa: float32(pressure),
	}
	if met.AirTempC != nil {
		msg.TemperatureC = float32(*met.AirTempC)
	}
	if met.RelativeHumidity != nil {
		msg.Humidity = float32(*met.RelativeHumidity)
	}
	if wind := store.Wind; wind != nil && wind.Valid {
		msg.WindDirDeg = float32(wind.AngleDeg)
		msg.WindSpeed = float32(wind.Speed)
	}

	if err := p.sink.SendWeather(msg); err != nil {
		log.WithField("err", err).Error("unable to send weather message")
	}
}

func (p *Publisher) publishGPS(store *TelemetryStore) {
	gps := store.GPS
	if gps == nil {
		return
	}
	// latitude, longitude and altitude are all required downstream;
	// they arrive on different sentences so wait for both
	if !gps.HasFix || !gps.HasAltitude {
		return
	}
	gate := p.gates[CategoryGPS]
	now := p.now()
	if !gate.open(now) {
		return
	}
	gate.mark(now)

	fixType := FixTypeNone
	switch gps.Fix {
	case 1:
		fixType = FixType2D
	case 2:
		fixType = FixType3D
	}
	speedMS := gps.SpeedKnots * knotsToMS

	err := p.sink.SendGPS(&GPSMessage{
		TimeUsec:    uint64(now.UnixMicro()),
		FixType:     fixType,
		LatitudeE7:  int32(gps.Latitude * 1e7),
		LongitudeE7: int32(gps.Longitude * 1e7),
		AltitudeMM:  int32(gps.AltitudeM * 1000),
		EPH:         uint16(gps.HDOP * 100),
		VelCMS:      uint16(speedMS * 100),
		CourseCDeg:  uint16(gps.TrackDeg * 100),
		Satellites:  uint8(gps.Satellites),
	})
	if err != nil {
		log.WithField("err", err).Error("unable to send gps message")
	}
}

func (p *Publisher) publishAttitude(store *TelemetryStore) {
	compass := store.Compass
	if compass == nil {
		return
	}
	gate := p.gates[CategoryCompass]
	now := p.now()
	if !gate.open(now) {
		return
	}
	gate.mark(now)

	// heading is the only axis the station reports
	err := p.sink.SendAttitude(&AttitudeMessage{
		TimeBootMS: uint32(now.Sub(p.start) / time.Millisecond),
		Yaw:        float32(compass.HeadingDeg * degToRad),
	})
	if err != nil {
		log.WithField("err", err).Error("unable to send attitude message")
	}
}
