package wxbridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrameCommand(t *testing.T) {
	assert.Equal(t, "$PAMTX,0*4C\r\n", frameCommand("$PAMTX,0"))
	assert.Equal(t, "$PAMTX,1*4D\r\n", frameCommand("$PAMTX,1"))
	// pre-terminated commands pass through untouched
	assert.Equal(t, "$PAMTC,BAUD,4800\r\n", frameCommand("$PAMTC,BAUD,4800\r\n"))
}

func TestSendRejectsEmptyCommand(t *testing.T) {
	port := &stubPort{}
	cmds := newCommandChannel(&Link{port: port, name: "fake", baud: 4800})

	_, err := cmds.Send("", true, time.Second)
	assert.Error(t, err)
	assert.Equal(t, "", port.writes.String())
}

func TestSendNoReply(t *testing.T) {
	port := &stubPort{}
	cmds := newCommandChannel(&Link{port: port, name: "fake", baud: 4800})

	reply, err := cmds.Send("$PAMTX,0", false, 0)
	assert.NoError(t, err)
	assert.Equal(t, "", reply)
	assert.Equal(t, "$PAMTX,0*4C\r\n", port.writes.String())
	assert.Equal(t, 1, port.drained)
}

func TestSendWithReply(t *testing.T) {
	port := &stubPort{}
	port.queueLine("$PAMTR,ACK")
	cmds := newCommandChannel(&Link{port: port, name: "fake", baud: 4800})

	reply, err := cmds.Send("$PAMTX,0", true, time.Second)
	assert.NoError(t, err)
	assert.Equal(t, "$PAMTR,ACK", reply)
}

func TestSendReplyTimeout(t *testing.T) {
	port := &stubPort{}
	cmds := newCommandChannel(&Link{port: port, name: "fake", baud: 4800})

	// a silent device is a negative result, not an error
	reply, err := cmds.Send("$PAMTX,0", true, time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, "", reply)
}
