package wxbridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ConnectionState tracks the serial session lifecycle.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateNegotiating
	StateConnected
)

const (
	readTimeout        = 100 * time.Millisecond
	idlePollDelay      = 10 * time.Millisecond
	faultRetryDelay    = time.Second
	connectSettle      = 500 * time.Millisecond
	probeReplyTimeout  = time.Second
	configReplyTimeout = time.Second
	commandTimeout     = time.Second
	stopJoinTimeout    = 2 * time.Second
)

// to allow testing
var (
	workerSleep   = time.Sleep
	newNegotiator = newBaudNegotiator
)

// Snapshot is the read-only view handed to external consumers.
type Snapshot struct {
	Connected bool
	Telemetry TelemetryStore
}

// Bridge supervises the station link: it reconnects on a fixed
// interval while disconnected, drains the link while connected, routes
// each line through the decoder to the store and publisher, and
// demotes to disconnected on any link fault. A single mutex guards
// link, state and store so external entry points cannot interleave
// bytes with the worker's read loop.
type Bridge struct {
	cfg Config

	mu            sync.Mutex
	link          *Link
	cmds          *CommandChannel
	state         ConnectionState
	store         TelemetryStore
	lastReconnect time.Time

	publisher *Publisher
	lineLog   *LineBuffer

	testMode bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func New(cfg Config, sink TelemetrySink) *Bridge {
	return &Bridge{
		cfg:       cfg,
		publisher: NewPublisher(sink),
		lineLog:   NewLineBuffer(defaultLineCapacity),
	}
}

// SetTestMode replaces the serial link with a synthetic sentence
// generator. Must be called before Start.
func (b *Bridge) SetTestMode(enabled bool) {
	b.testMode = enabled
}

// Start launches the background worker. The worker exits promptly when
// ctx is cancelled or Stop is called.
func (b *Bridge) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	if b.testMode {
		b.mu.Lock()
		b.state = StateConnected
		b.mu.Unlock()
		go b.runSimulator(ctx)
		return
	}
	go b.run(ctx)
}

// Stop cancels the worker, waits a bounded time for it to exit, then
// tears the link down.
func (b *Bridge) Stop() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopJoinTimeout):
		log.Warn("worker did not stop within join timeout")
	}
	b.mu.Lock()
	b.disconnectLocked()
	b.mu.Unlock()
}

func (b *Bridge) run(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		b.mu.Lock()
		if b.state != StateConnected {
			if time.Since(b.lastReconnect) >= b.cfg.ReconnectInterval.Duration {
				b.lastReconnect = time.Now()
				log.Info("attempting auto-reconnect")
				if err := b.connectLocked(b.cfg.Port); err != nil {
					log.WithField("err", err).Warn("reconnect failed")
				}
			}
			b.mu.Unlock()
			workerSleep(idlePollDelay)
			continue
		}

		line, ok, err := b.link.ReadLine(readTimeout)
		if err != nil {
			b.dropLinkLocked(err)
			b.mu.Unlock()
			workerSleep(faultRetryDelay)
			continue
		}
		if ok {
			b.handleLineLocked(line)
		}
		b.mu.Unlock()
		if !ok {
			// no data yet, avoid busy-spin
			workerSleep(idlePollDelay)
		}
	}
}

func (b *Bridge) handleLineLocked(line string) {
	cat, decoded := decodeSentence(line, &b.store)
	if b.cfg.PassThrough {
		b.lineLog.Append(line)
		return
	}
	if decoded {
		b.publisher.Publish(cat, &b.store)
	}
}

// Connect opens the named port and brings the device to the high baud
// rate. It replaces any existing session and becomes the port the
// reconnect loop retries.
func (b *Bridge) Connect(port string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectLocked(port)
}

func (b *Bridge) connectLocked(port string) error {
	if b.link != nil {
		b.disconnectLocked()
	}
	b.cfg.Port = port

	log.WithField("port", port).WithField("baud", b.cfg.DefaultBaud).Info("connecting")
	link, err := openLink(port, b.cfg.DefaultBaud)
	if err != nil {
		return err
	}
	b.link = link
	b.cmds = newCommandChannel(link)
	workerSleep(connectSettle)

	// benign probe; the device must answer before a baud change is
	// worth attempting
	reply, err := b.cmds.Send(cmdProbe, true, probeReplyTimeout)
	if err == nil && reply == "" {
		err = errors.New("no response from device at default baud rate")
	}
	if err != nil {
		b.dropLinkLocked(err)
		return err
	}

	b.setStateLocked(StateNegotiating)
	if err := newNegotiator(link, b.cmds).Negotiate(b.cfg.HighBaud); err != nil {
		b.dropLinkLocked(err)
		return err
	}

	b.configureLocked()
	b.store.Clear()
	b.setStateLocked(StateConnected)
	log.WithField("port", port).WithField("baud", link.Baud()).Info("connected")
	return nil
}

// configureLocked runs the vendor setup sequence. Individual command
// failures are tolerated, but transmissions are always resumed so a
// half-configured device is not left silent.
func (b *Bridge) configureLocked() {
	if _, err := b.cmds.Send(cmdSuspendTx, true, configReplyTimeout); err != nil {
		log.WithField("err", err).Warn("unable to suspend transmissions for configuration")
	}
	for _, cmd := range b.cfg.Device.SetupCommands {
		reply, err := b.cmds.Send(cmd, true, configReplyTimeout)
		if err != nil {
			log.WithField("command", cmd).WithField("err", err).Warn("configuration command failed")
			continue
		}
		log.WithField("command", cmd).WithField("reply", reply).Debug("configuration command")
	}
	if _, err := b.cmds.Send(cmdResumeTx, false, 0); err != nil {
		log.WithField("err", err).Warn("unable to resume transmissions")
	}
}

// Disconnect best-effort reverts the device to the default baud rate
// and closes the link.
func (b *Bridge) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnectLocked()
}

func (b *Bridge) disconnectLocked() {
	if b.link != nil {
		if _, err := b.cmds.Send(fmt.Sprintf(cmdBaudFmt, b.cfg.DefaultBaud), false, 0); err != nil {
			log.WithField("err", err).Debug("unable to revert device baud rate")
		}
		if err := b.link.Close(); err != nil {
			log.WithField("err", err).Warn("unable to close link")
		}
		b.link = nil
		b.cmds = nil
	}
	b.setStateLocked(StateDisconnected)
	log.Info("disconnected")
}

// dropLinkLocked demotes to disconnected after a link fault. The
// reconnect loop takes over from here; nothing is fatal.
func (b *Bridge) dropLinkLocked(cause error) {
	log.WithField("err", cause).Error("link fault, dropping connection")
	if b.link != nil {
		if err := b.link.Close(); err != nil {
			log.WithField("err", err).Warn("unable to close faulted link")
		}
		b.link = nil
		b.cmds = nil
	}
	b.setStateLocked(StateDisconnected)
}

// setStateLocked enforces the invariant that the store is cleared on
// every transition away from Connected.
func (b *Bridge) setStateLocked(state ConnectionState) {
	if b.state == StateConnected && state != StateConnected {
		b.store.Clear()
	}
	b.state = state
}

// Snapshot returns the connection flag and a deep copy of the latest
// telemetry.
func (b *Bridge) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Connected: b.state == StateConnected,
		Telemetry: b.store.Copy(),
	}
}

// SendRawCommand frames and sends an arbitrary vendor command,
// returning the device's reply line if one arrives in time.
func (b *Bridge) SendRawCommand(text string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.link == nil {
		return "", errors.New("not connected")
	}
	reply, err := b.cmds.Send(text, true, commandTimeout)
	if err != nil {
		return "", err
	}
	b.lineLog.Append("> " + text)
	if reply != "" {
		b.lineLog.Append("< " + reply)
	}
	return reply, nil
}

// ChangeBaud renegotiates the link to a new rate. On failure the
// negotiator has already rolled the link back to the previous rate.
func (b *Bridge) ChangeBaud(baud int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.link == nil {
		return errors.New("not connected")
	}
	prev := b.state
	b.setStateLocked(StateNegotiating)
	err := newNegotiator(b.link, b.cmds).Negotiate(baud)
	// on rollback the device is still talking at the old rate
	b.setStateLocked(prev)
	return err
}

// SubscribeLines returns a live feed of pass-through lines. The feed
// carries keep-alive entries while idle and ends when the subscriber
// closes it.
func (b *Bridge) SubscribeLines() *Subscription {
	return b.lineLog.Subscribe()
}

// BufferedLines returns the bounded pass-through log, oldest first.
func (b *Bridge) BufferedLines() []string {
	return b.lineLog.Lines()
}
