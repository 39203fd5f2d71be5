package wxbridge

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// runSimulator feeds synthetic station sentences through the normal
// decode path so the bridge can be exercised without hardware.
func (b *Bridge) runSimulator(ctx context.Context) {
	defer b.wg.Done()

	windAngle := 0.0
	windSpeed := 0.0
	heading := 0.0
	pressure := 29.92
	temp := 15.0
	lat := 47.6062
	down := false

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		tick++

		if down {
			windSpeed -= 0.5
			temp -= 0.1
		} else {
			windSpeed += 0.5
			temp += 0.1
		}
		if windSpeed >= 30 {
			down = true
		} else if windSpeed <= 0 {
			down = false
		}
		windAngle += 3
		if windAngle >= 360 {
			windAngle -= 360
		}
		heading += 1
		if heading >= 360 {
			heading -= 360
		}
		lat += 0.00001

		b.feedLine(simSentence(fmt.Sprintf("$WIMWV,%.1f,R,%.1f,N,A", windAngle, windSpeed)))
		b.feedLine(simSentence(fmt.Sprintf("$HCHDT,%.1f,T", heading)))
		b.feedLine(simSentence(fmt.Sprintf("$GPRMC,120000,A,%s,N,12220.10,W,5.0,90.0,010120,,,", simCoord(lat))))
		b.feedLine(simSentence("$GPGGA,120000,4736.37,N,12220.10,W,1,8,0.9,12.0,M,0.0,M,,"))
		if tick%5 == 0 {
			b.feedLine(simSentence(fmt.Sprintf("$WIMDA,%.2f,I,%.4f,B,%.1f,C,,C,60.0,,10.0,C", pressure, pressure*0.0338639, temp)))
		}
	}
}

func (b *Bridge) feedLine(line string) {
	b.mu.Lock()
	b.handleLineLocked(line)
	b.mu.Unlock()
}

func simSentence(body string) string {
	return strings.TrimSpace(frameCommand(body))
}

func simCoord(latDeg float64) string {
	deg := int(latDeg)
	min := (latDeg - float64(deg)) * 60
	return fmt.Sprintf("%02d%05.2f", deg, min)
}
