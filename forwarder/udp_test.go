package forwarder

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"wxbridge"
)

func recvDatagram(t *testing.T, pc net.PacketConn) []byte {
	buffer := make([]byte, 1024)
	assert.NoError(t, pc.SetReadDeadline(time.Now().Add(time.Second*3)))
	n, _, err := pc.ReadFrom(buffer)
	assert.NoError(t, err)
	return buffer[:n]
}

func TestUDPForwarderGPS(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	assert.NoError(t, err)
	defer pc.Close()
	udpAddr := pc.LocalAddr().(*net.UDPAddr)

	udp, err := NewUDPForwarder("127.0.0.1", udpAddr.Port)
	assert.NoError(t, err)
	defer udp.Close()

	newMsg := wxbridge.GPSMessage{
		TimeUsec:    1,
		FixType:     wxbridge.FixType3D,
		LatitudeE7:  476062000,
		LongitudeE7: -1223321000,
		AltitudeMM:  12000,
		EPH:         90,
		VelCMS:      257,
		CourseCDeg:  9000,
		Satellites:  8,
	}
	assert.NoError(t, udp.SendGPS(&newMsg))

	data := recvDatagram(t, pc)

	hdr := Header{}
	recvMsg := wxbridge.GPSMessage{}
	rdr := bytes.NewReader(data)
	assert.NoError(t, binary.Read(rdr, binary.LittleEndian, &hdr))
	assert.NoError(t, binary.Read(rdr, binary.LittleEndian, &recvMsg))
	assert.Equal(t, uint8(TypeGPS), hdr.Type)
	assert.Equal(t, &newMsg, &recvMsg)
}

func TestUDPForwarderWind(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	assert.NoError(t, err)
	defer pc.Close()
	udpAddr := pc.LocalAddr().(*net.UDPAddr)

	udp, err := NewUDPForwarder("127.0.0.1", udpAddr.Port)
	assert.NoError(t, err)
	defer udp.Close()

	newMsg := wxbridge.WindMessage{
		DirectionDeg: 84.0,
		SpeedMS:      5.35,
	}
	assert.NoError(t, udp.SendWind(&newMsg))

	data := recvDatagram(t, pc)

	hdr := Header{}
	recvMsg := wxbridge.WindMessage{}
	rdr := bytes.NewReader(data)
	assert.NoError(t, binary.Read(rdr, binary.LittleEndian, &hdr))
	assert.NoError(t, binary.Read(rdr, binary.LittleEndian, &recvMsg))
	assert.Equal(t, uint8(TypeWind), hdr.Type)
	assert.Equal(t, &newMsg, &recvMsg)
}
