package wxbridge

import (
	"bytes"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	serial "go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// to allow testing
var serialOpen = func(name string, baud int) (SerialPort, error) {
	return serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

// PortInfo describes a discoverable serial port.
type PortInfo struct {
	Port        string `json:"port"`
	Description string `json:"description"`
}

// ListPorts enumerates the serial ports visible to the host.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "unable to enumerate serial ports")
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		desc := d.Product
		if desc == "" {
			desc = d.Name
		}
		ports = append(ports, PortInfo{Port: d.Name, Description: desc})
	}
	return ports, nil
}

// maxPendingBytes bounds the unterminated-line accumulator. NMEA lines
// are at most 82 bytes; anything this far past a terminator is garbage
// from a rate mismatch, so only the newest tail is kept.
const maxPendingBytes = 4096

// Link owns the physical serial channel. It has no protocol knowledge:
// it opens and closes the port, reads terminator-delimited lines with a
// timeout, and writes raw bytes. A Link is only touched while holding
// the Bridge mutex.
type Link struct {
	port    SerialPort
	name    string
	baud    int
	pending []byte
}

func openLink(name string, baud int) (*Link, error) {
	port, err := serialOpen(name, baud)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s at %d baud", name, baud)
	}
	return &Link{
		port: port,
		name: name,
		baud: baud,
	}, nil
}

func (l *Link) Name() string {
	return l.name
}

func (l *Link) Baud() int {
	return l.baud
}

func (l *Link) IsOpen() bool {
	return l.port != nil
}

func (l *Link) Close() error {
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	l.pending = nil
	return err
}

// Reopen closes any open port and reopens the same device at the given
// baud rate, discarding buffered input.
func (l *Link) Reopen(baud int) error {
	if l.port != nil {
		if err := l.port.Close(); err != nil {
			log.WithField("err", err).Warn("unable to close port before reopen")
		}
		l.port = nil
	}
	port, err := serialOpen(l.name, baud)
	if err != nil {
		return errors.Wrapf(err, "unable to reopen %s at %d baud", l.name, baud)
	}
	l.port = port
	l.baud = baud
	l.pending = nil
	return nil
}

// ReadLine returns the next terminator-delimited line, waiting at most
// timeout for data. ok is false when the timeout elapsed with no
// complete line; that is not an error, only "no data yet". Bytes that
// do not decode as text are substituted rather than failing the read,
// so one corrupted frame cannot stall the link.
func (l *Link) ReadLine(timeout time.Duration) (line string, ok bool, err error) {
	if l.port == nil {
		return "", false, errors.New("link not open")
	}
	deadline := time.Now().Add(timeout)
	for {
		if i := bytes.IndexByte(l.pending, '\n'); i >= 0 {
			raw := l.pending[:i+1]
			l.pending = append([]byte(nil), l.pending[i+1:]...)
			return sanitizeLine(raw), true, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", false, nil
		}
		if err := l.port.SetReadTimeout(remaining); err != nil {
			return "", false, errors.Wrap(err, "unable to set read timeout")
		}
		buf := make([]byte, 256)
		n, err := l.port.Read(buf)
		if err != nil {
			return "", false, errors.Wrap(err, "serial read")
		}
		if n == 0 {
			// read timeout reached
			return "", false, nil
		}
		l.pending = append(l.pending, buf[:n]...)
		if len(l.pending) > maxPendingBytes {
			l.pending = append([]byte(nil), l.pending[len(l.pending)-maxPendingBytes:]...)
		}
	}
}

// Write sends raw bytes and drains the OS transmit buffer so commands
// are on the wire before any reply wait starts.
func (l *Link) Write(p []byte) error {
	if l.port == nil {
		return errors.New("link not open")
	}
	if _, err := l.port.Write(p); err != nil {
		return errors.Wrap(err, "serial write")
	}
	return errors.Wrap(l.port.Drain(), "serial drain")
}

// ResetBuffers discards any pending input and output, including the
// Link's own partial-line accumulation.
func (l *Link) ResetBuffers() {
	l.pending = nil
	if l.port == nil {
		return
	}
	if err := l.port.ResetInputBuffer(); err != nil {
		log.WithField("err", err).Warn("unable to reset input buffer")
	}
	if err := l.port.ResetOutputBuffer(); err != nil {
		log.WithField("err", err).Warn("unable to reset output buffer")
	}
}

func sanitizeLine(raw []byte) string {
	s := strings.TrimRight(string(raw), "\r\n")
	return strings.ToValidUTF8(s, string(utf8.RuneError))
}
