package wxbridge

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var negotiateSleep = time.Sleep

type baudState int

const (
	baudIdle baudState = iota
	baudSuspendTx
	baudChangeCmd
	baudPortCycled
	baudVerify
	baudSuccess
	baudRollback
)

func (s baudState) String() string {
	switch s {
	case baudIdle:
		return "idle"
	case baudSuspendTx:
		return "suspend-tx"
	case baudChangeCmd:
		return "change-baud-cmd"
	case baudPortCycled:
		return "port-cycled"
	case baudVerify:
		return "verify-at-new-baud"
	case baudSuccess:
		return "success"
	case baudRollback:
		return "rollback"
	}
	return "unknown"
}

// baudNegotiator drives the vendor sequence that moves the link to a
// new baud rate. The device only accepts a rate change with
// transmissions suspended, and the host cannot trust an ack at the new
// rate: success is confirmed empirically, by receiving data after the
// port cycle. On any failure the link is left (re)opened at the
// original rate.
type baudNegotiator struct {
	link *Link
	cmds *CommandChannel

	suspendAttempts int
	suspendBackoff  time.Duration
	replyTimeout    time.Duration
	settleDelay     time.Duration
	verifyAttempts  int
	verifyInterval  time.Duration
}

func newBaudNegotiator(link *Link, cmds *CommandChannel) *baudNegotiator {
	return &baudNegotiator{
		link:            link,
		cmds:            cmds,
		suspendAttempts: 2,
		suspendBackoff:  500 * time.Millisecond,
		replyTimeout:    time.Second,
		settleDelay:     2 * time.Second,
		verifyAttempts:  3,
		verifyInterval:  500 * time.Millisecond,
	}
}

// Negotiate runs the state machine to completion. It returns nil only
// from the success state; every failure path reports the state it
// failed in and leaves the link at the original baud when possible.
func (n *baudNegotiator) Negotiate(newBaud int) error {
	origBaud := n.link.Baud()
	state := baudIdle
	var failure error

	for {
		log.WithField("state", state).WithField("baud", newBaud).Debug("baud negotiation")
		switch state {
		case baudIdle:
			state = baudSuspendTx

		case baudSuspendTx:
			if err := n.suspendTransmissions(); err != nil {
				failure = err
				state = baudRollback
				continue
			}
			state = baudChangeCmd

		case baudChangeCmd:
			// the device switches rates immediately, so no reply
			// can be expected at the old rate
			if _, err := n.cmds.Send(fmt.Sprintf(cmdBaudFmt, newBaud), false, 0); err != nil {
				failure = err
				state = baudRollback
				continue
			}
			state = baudPortCycled

		case baudPortCycled:
			n.link.ResetBuffers()
			if err := n.link.Close(); err != nil {
				log.WithField("err", err).Warn("unable to close link during baud change")
			}
			negotiateSleep(n.settleDelay)
			if err := n.link.Reopen(newBaud); err != nil {
				failure = err
				state = baudRollback
				continue
			}
			n.link.ResetBuffers()
			state = baudVerify

		case baudVerify:
			if err := n.verify(); err != nil {
				failure = err
				state = baudRollback
				continue
			}
			state = baudSuccess

		case baudSuccess:
			log.WithField("baud", newBaud).Info("baud rate negotiated")
			return nil

		case baudRollback:
			if n.link.Baud() != origBaud || !n.link.IsOpen() {
				if err := n.link.Reopen(origBaud); err != nil {
					log.WithField("err", err).Error("unable to reopen link at original baud")
				}
			}
			return errors.Wrapf(failure, "baud negotiation to %d failed", newBaud)
		}
	}
}

// suspendTransmissions requires an affirmative reply within a bounded
// retry budget.
func (n *baudNegotiator) suspendTransmissions() error {
	for attempt := 0; attempt < n.suspendAttempts; attempt++ {
		if attempt > 0 {
			negotiateSleep(n.suspendBackoff)
		}
		reply, err := n.cmds.Send(cmdSuspendTx, true, n.replyTimeout)
		if err != nil {
			return err
		}
		if reply != "" {
			return nil
		}
	}
	return errors.Errorf("device did not acknowledge transmission suspend after %d attempts", n.suspendAttempts)
}

// verify resumes transmissions and polls for any inbound line. Silence
// across the attempt budget means the new rate did not take.
func (n *baudNegotiator) verify() error {
	if _, err := n.cmds.Send(cmdResumeTx, false, 0); err != nil {
		return err
	}
	for attempt := 0; attempt < n.verifyAttempts; attempt++ {
		line, ok, err := n.link.ReadLine(n.verifyInterval)
		if err != nil {
			return err
		}
		if ok && line != "" {
			return nil
		}
	}
	return errors.Errorf("no data received after %d verify attempts", n.verifyAttempts)
}
