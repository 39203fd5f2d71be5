package wxbridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Vendor commands understood by the station. The device-configuration
// sequence is configurable (see Config); these are the fixed protocol
// commands the bridge itself relies on.
const (
	cmdSuspendTx = "$PAMTX,0"
	cmdResumeTx  = "$PAMTX,1"
	cmdProbe     = "$PAMTC,EN,ALL,0"
	cmdBaudFmt   = "$PAMTC,BAUD,%d"
)

// CommandChannel frames vendor commands with an NMEA checksum trailer
// and writes them through the Link, optionally waiting a bounded time
// for a single reply line.
type CommandChannel struct {
	link *Link
}

func newCommandChannel(link *Link) *CommandChannel {
	return &CommandChannel{link: link}
}

// frameCommand appends the checksum trailer unless the command already
// carries a terminator: XOR of every byte after the leading $, rendered
// as two hex digits.
func frameCommand(command string) string {
	if strings.HasSuffix(command, "\r\n") {
		return command
	}
	var sum byte
	for i := 1; i < len(command); i++ {
		sum ^= command[i]
	}
	return fmt.Sprintf("%s*%02X\r\n", command, sum)
}

// Send writes the command and, if expectReply is set, drains at most
// one line within replyTimeout. An empty reply means the device stayed
// silent; callers decide whether that is significant.
func (c *CommandChannel) Send(command string, expectReply bool, replyTimeout time.Duration) (string, error) {
	if command == "" {
		return "", errors.New("empty command")
	}
	framed := frameCommand(command)
	log.WithField("command", strings.TrimSpace(framed)).Debug("sending command")
	if err := c.link.Write([]byte(framed)); err != nil {
		return "", errors.Wrapf(err, "unable to send command %q", command)
	}
	if !expectReply {
		return "", nil
	}
	reply, ok, err := c.link.ReadLine(replyTimeout)
	if err != nil {
		return "", errors.Wrapf(err, "unable to read reply to %q", command)
	}
	if !ok {
		return "", nil
	}
	log.WithField("reply", reply).Debug("command reply")
	return reply, nil
}
