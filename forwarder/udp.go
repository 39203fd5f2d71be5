package forwarder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"unsafe"

	"github.com/pkg/errors"

	"wxbridge"
)

// Header prefixes every datagram so the consumer can dispatch by
// message type.
type Header struct {
	Type uint8
}

const (
	TypeWind     = 1
	TypeWeather  = 2
	TypeGPS      = 3
	TypeAttitude = 4
)

var maxMessageSize = int(unsafe.Sizeof(Header{}) + unsafe.Sizeof(wxbridge.GPSMessage{}))

// UDPForwarder pushes little-endian binary telemetry datagrams to a
// UDP consumer. Sends are fire-and-forget; no acknowledgement is
// awaited.
type UDPForwarder struct {
	conn net.Conn
}

func NewUDPForwarder(server string, port int) (*UDPForwarder, error) {
	conn, err := net.Dial("udp", fmt.Sprintf("%s:%d", server, port))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to dial udp %s:%d", server, port)
	}
	writeBufSize := maxMessageSize * 8
	udpConn := conn.(*net.UDPConn)
	if err = udpConn.SetWriteBuffer(writeBufSize); err != nil {
		return nil, errors.Wrapf(err, "unable to set OS write buffer to %v", writeBufSize)
	}
	return &UDPForwarder{conn: conn}, nil
}

func (udp *UDPForwarder) Close() error {
	return udp.conn.Close()
}

func (udp *UDPForwarder) SendWind(msg *wxbridge.WindMessage) error {
	return udp.send(TypeWind, msg)
}

func (udp *UDPForwarder) SendWeather(msg *wxbridge.WeatherMessage) error {
	return udp.send(TypeWeather, msg)
}

func (udp *UDPForwarder) SendGPS(msg *wxbridge.GPSMessage) error {
	return udp.send(TypeGPS, msg)
}

func (udp *UDPForwarder) SendAttitude(msg *wxbridge.AttitudeMessage) error {
	return udp.send(TypeAttitude, msg)
}

func (udp *UDPForwarder) send(msgType uint8, msg interface{}) error {
	buf := bytes.NewBuffer([]byte{})
	hdr := Header{
		Type: msgType,
	}
	if err := binary.Write(buf, binary.LittleEndian, &hdr); err != nil {
		return errors.Wrap(err, "unable to write udp packet header")
	}
	if err := binary.Write(buf, binary.LittleEndian, msg); err != nil {
		return errors.Wrapf(err, "unable to write telemetry udp packet type %d", msgType)
	}
	return binary.Write(udp.conn, binary.LittleEndian, buf.Bytes())
}
