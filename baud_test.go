package wxbridge

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func noNegotiateDelays() func() {
	origSleep := negotiateSleep
	negotiateSleep = func(time.Duration) {}
	return func() {
		negotiateSleep = origSleep
	}
}

func fastNegotiator(link *Link, cmds *CommandChannel) *baudNegotiator {
	n := newBaudNegotiator(link, cmds)
	n.replyTimeout = time.Millisecond
	n.verifyInterval = time.Millisecond
	return n
}

func TestNegotiateSuccess(t *testing.T) {
	defer noNegotiateDelays()()

	oldPort := &stubPort{}
	oldPort.queueLine("$PAMTR,ACK")
	newPort := &stubPort{}
	newPort.queueLine("$WIMWV,45.0,R,10.0,N,A*1C")

	opener := &stubOpener{ports: []*stubPort{newPort}}
	defer opener.install()()

	link := &Link{port: oldPort, name: "fake", baud: 4800}
	n := fastNegotiator(link, newCommandChannel(link))

	assert.NoError(t, n.Negotiate(38400))
	assert.Equal(t, 38400, link.Baud())
	assert.Equal(t, []int{38400}, opener.bauds)
	assert.True(t, oldPort.closed)

	// suspend and baud change go out at the old rate, resume at the new
	assert.Contains(t, oldPort.writes.String(), "$PAMTX,0*4C\r\n")
	assert.Contains(t, oldPort.writes.String(), "$PAMTC,BAUD,38400")
	assert.Contains(t, newPort.writes.String(), "$PAMTX,1*4D\r\n")
}

func TestNegotiateSuspendRefused(t *testing.T) {
	defer noNegotiateDelays()()

	oldPort := &stubPort{}
	opener := &stubOpener{}
	defer opener.install()()

	link := &Link{port: oldPort, name: "fake", baud: 4800}
	n := fastNegotiator(link, newCommandChannel(link))

	err := n.Negotiate(38400)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "suspend")
	// refusal aborts before any port cycle: still at the old rate
	assert.Equal(t, 4800, link.Baud())
	assert.Empty(t, opener.bauds)
	// both suspend attempts were made
	assert.Equal(t, 2, strings.Count(oldPort.writes.String(), "$PAMTX,0*4C\r\n"))
}

func TestNegotiateVerifySilenceRollsBack(t *testing.T) {
	defer noNegotiateDelays()()

	oldPort := &stubPort{}
	oldPort.queueLine("$PAMTR,ACK")
	newPort := &stubPort{} // device never talks at the new rate
	rollbackPort := &stubPort{}

	opener := &stubOpener{ports: []*stubPort{newPort, rollbackPort}}
	defer opener.install()()

	link := &Link{port: oldPort, name: "fake", baud: 4800}
	n := fastNegotiator(link, newCommandChannel(link))

	err := n.Negotiate(38400)
	assert.Error(t, err)
	// reopened at the original rate after the verify budget ran out
	assert.Equal(t, 4800, link.Baud())
	assert.Equal(t, []int{38400, 4800}, opener.bauds)
	assert.True(t, newPort.closed)
}

func TestNegotiateReopenFailureRollsBack(t *testing.T) {
	defer noNegotiateDelays()()

	oldPort := &stubPort{}
	oldPort.queueLine("$PAMTR,ACK")
	rollbackPort := &stubPort{}

	opener := &stubOpener{
		ports: []*stubPort{rollbackPort},
		errs:  []error{assert.AnError, nil},
	}
	defer opener.install()()

	link := &Link{port: oldPort, name: "fake", baud: 4800}
	n := fastNegotiator(link, newCommandChannel(link))

	err := n.Negotiate(38400)
	assert.Error(t, err)
	assert.Equal(t, 4800, link.Baud())
	assert.Equal(t, []int{38400, 4800}, opener.bauds)
}
