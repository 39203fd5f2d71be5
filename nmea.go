package wxbridge

import (
	"strconv"
	"strings"
	"time"
)

// decodeSentence turns one received line into at most one
// TelemetryStore update. Lines that do not carry the sentence frame
// marker are ignored; a sentence whose required fields are missing or
// non-numeric leaves the store untouched for its category. Inbound
// checksums are not verified before parsing, matching the device's
// observed deployment behavior. On success the raw line, sentence
// identifier and wall-clock time are recorded and the affected
// category returned so the caller can attempt a downstream publish.
func decodeSentence(line string, store *TelemetryStore) (Category, bool) {
	if !strings.HasPrefix(line, "$") {
		return CategoryNone, false
	}
	parts := strings.Split(line, ",")

	var cat Category
	var decoded bool
	switch parts[0] {
	case "$WIMWV":
		cat, decoded = CategoryWind, decodeWind(parts, store)
	case "$WIVWR":
		// relative-wind variant; carries no fields the store keeps but
		// its arrival republishes the last wind sample
		cat, decoded = CategoryWind, store.Wind != nil
	case "$WIMDA":
		cat, decoded = CategoryWeather, decodeWeather(parts, store)
	case "$GPRMC":
		cat, decoded = CategoryGPS, decodeGPSFix(parts, store)
	case "$GPGGA":
		cat, decoded = CategoryGPS, decodeGPSAltitude(parts, store)
	case "$HCHDT":
		cat, decoded = CategoryCompass, decodeCompass(parts, store)
	case "$GPZDA":
		cat, decoded = CategoryTime, decodeTime(parts, store)
	default:
		return CategoryNone, false
	}
	if !decoded {
		return CategoryNone, false
	}

	store.LastSentence = parts[0]
	store.LastRaw = line
	store.UpdatedAt = time.Now()
	return cat, true
}

// $WIMWV,<angle>,<R|T>,<speed>,<N|K|M>,<A|V>*hh
func decodeWind(parts []string, store *TelemetryStore) bool {
	if len(parts) < 6 {
		return false
	}
	angle, ok := parseField(parts[1])
	if !ok {
		return false
	}
	speed, ok := parseField(parts[3])
	if !ok {
		return false
	}
	status := stripChecksum(parts[5])
	if status == "" {
		return false
	}
	store.Wind = &WindSample{
		AngleDeg:  angle,
		Reference: parts[2],
		Speed:     speed,
		SpeedUnit: parts[4],
		Valid:     status == "A",
	}
	return true
}

// $WIMDA,<inHg>,I,<bars>,B,<airC>,C,<waterC>,C,<hum>,,<dewC>,C,...
// every value is optional; absent fields stay nil
func decodeWeather(parts []string, store *TelemetryStore) bool {
	if len(parts) < 12 {
		return false
	}
	sample := &WeatherSample{}
	fields := []struct {
		idx  int
		dest **float64
	}{
		{1, &sample.PressureInHg},
		{3, &sample.PressureBars},
		{5, &sample.AirTempC},
		{7, &sample.WaterTempC},
		{9, &sample.RelativeHumidity},
		{11, &sample.DewPointC},
	}
	for _, f := range fields {
		field := stripChecksum(parts[f.idx])
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return false
		}
		*f.dest = &v
	}
	store.Weather = sample
	return true
}

// $GPRMC,<utc>,<A|V>,<lat>,<N|S>,<lon>,<E|W>,<knots>,<track>,<date>,...
func decodeGPSFix(parts []string, store *TelemetryStore) bool {
	if len(parts) < 12 {
		return false
	}
	if parts[3] == "" || parts[4] == "" || parts[5] == "" || parts[6] == "" {
		return false
	}
	lat, err := parseCoordinate(parts[3], parts[4])
	if err != nil {
		return false
	}
	lon, err := parseCoordinate(parts[5], parts[6])
	if err != nil {
		return false
	}
	speed, ok := parseFieldDefault(parts[7], 0)
	if !ok {
		return false
	}
	track, ok := parseFieldDefault(parts[8], 0)
	if !ok {
		return false
	}

	gps := store.GPS
	if gps == nil {
		gps = &GPSSample{}
		store.GPS = gps
	}
	gps.Latitude = lat
	gps.Longitude = lon
	gps.SpeedKnots = speed
	gps.TrackDeg = track
	gps.Fix = 0
	if parts[2] == "A" {
		gps.Fix = 1
	}
	gps.HasFix = true
	return true
}

// $GPGGA,<utc>,<lat>,<N|S>,<lon>,<E|W>,<qual>,<sats>,<hdop>,<alt>,M,...
// merges altitude, HDOP and satellite count into the composite record
func decodeGPSAltitude(parts []string, store *TelemetryStore) bool {
	if len(parts) < 15 {
		return false
	}
	alt, ok := parseFieldDefault(parts[9], 0)
	if !ok {
		return false
	}
	hdop, ok := parseFieldDefault(parts[8], 0)
	if !ok {
		return false
	}
	var sats int
	if parts[7] != "" {
		v, err := strconv.Atoi(parts[7])
		if err != nil {
			return false
		}
		sats = v
	}

	gps := store.GPS
	if gps == nil {
		gps = &GPSSample{}
		store.GPS = gps
	}
	gps.AltitudeM = alt
	gps.HDOP = hdop
	gps.Satellites = sats
	gps.HasAltitude = true
	return true
}

// $HCHDT,<heading>,<T>*hh
func decodeCompass(parts []string, store *TelemetryStore) bool {
	if len(parts) < 3 {
		return false
	}
	heading, ok := parseField(parts[1])
	if !ok {
		return false
	}
	store.Compass = &CompassSample{
		HeadingDeg: heading,
		Reference:  stripChecksum(parts[2]),
	}
	return true
}

// $GPZDA,<hhmmss.ss>,<day>,<month>,<year>,...
func decodeTime(parts []string, store *TelemetryStore) bool {
	if len(parts) < 5 {
		return false
	}
	store.Clock = &TimeSample{
		UTCTime: parts[1],
		Day:     parts[2],
		Month:   parts[3],
		Year:    stripChecksum(parts[4]),
	}
	return true
}

// parseCoordinate converts NMEA ddmm.mmmm (latitude) or dddmm.mmmm
// (longitude) to decimal degrees, negated for southern/western
// hemispheres.
func parseCoordinate(value, hemisphere string) (float64, error) {
	degDigits := 2
	if hemisphere == "E" || hemisphere == "W" {
		degDigits = 3
	}
	if len(value) <= degDigits {
		return 0, strconv.ErrSyntax
	}
	deg, err := strconv.ParseFloat(value[:degDigits], 64)
	if err != nil {
		return 0, err
	}
	min, err := strconv.ParseFloat(value[degDigits:], 64)
	if err != nil {
		return 0, err
	}
	dec := deg + min/60.0
	if hemisphere == "S" || hemisphere == "W" {
		dec = -dec
	}
	return dec, nil
}

func parseField(field string) (float64, bool) {
	field = stripChecksum(field)
	if field == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseFieldDefault treats an empty field as the default, but still
// rejects non-numeric garbage.
func parseFieldDefault(field string, def float64) (float64, bool) {
	field = stripChecksum(field)
	if field == "" {
		return def, true
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func stripChecksum(field string) string {
	if i := strings.IndexByte(field, '*'); i >= 0 {
		return field[:i]
	}
	return field
}
