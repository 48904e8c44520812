package ble

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/boonled/internal/device"
	"github.com/srg/boonled/internal/ringchan"
	"github.com/srg/boonled/pkg/config"
)

var (
	errConnectTimeout = errors.New("connection timeout")
	errSetupAborted   = errors.New("link closed during setup")
)

// linkSnapshot is the immutable view of the current link. The connection loop
// is its only writer and replaces it wholesale; everyone else loads it.
type linkSnapshot struct {
	session uint64
	link    device.Link
	name    string
	address string
	chars   map[Channel]device.Characteristic
	gate    *readinessGate
}

// ready reports link open, every required channel resolved and gate Ready.
func (s *linkSnapshot) ready() bool {
	if s == nil || s.link == nil || s.gate == nil {
		return false
	}
	for _, ch := range RequiredChannels {
		if _, ok := s.chars[ch]; !ok {
			return false
		}
	}
	return s.gate.isReady()
}

func (s *linkSnapshot) withChars(chars map[Channel]device.Characteristic) *linkSnapshot {
	next := *s
	next.chars = chars
	return &next
}

type connectionHooks struct {
	onReady        func(session uint64)
	onDisconnected func(session uint64, reason string)
	onWriteAck     func(session uint64, uuid string, status device.Status)
}

// connection is the link state machine. run() owns every mutation of the
// snapshot; transport callbacks and the writer only post into events.
type connection struct {
	radio    device.Radio
	cfg      *config.Config
	logger   *logrus.Logger
	state    *stateHolder
	events   *mailbox
	incoming *ringchan.RingChannel[Inbound]
	hooks    connectionHooks

	snap atomic.Pointer[linkSnapshot]

	// owned by the loop goroutine
	backoff     backoff
	discovering uint64
}

func newConnection(radio device.Radio, cfg *config.Config, logger *logrus.Logger, state *stateHolder, incoming *ringchan.RingChannel[Inbound]) *connection {
	c := &connection{
		radio:    radio,
		cfg:      cfg,
		logger:   logger,
		state:    state,
		events:   newMailbox(),
		incoming: incoming,
		backoff:  backoff{base: cfg.BackoffBase, limit: cfg.BackoffMax},
	}
	c.snap.Store(&linkSnapshot{gate: newReadinessGate()})
	return c
}

func (c *connection) current() *linkSnapshot {
	return c.snap.Load()
}

func (c *connection) isReady() bool {
	return c.current().ready()
}

// run drives Scanning -> Connecting -> Connected and back until ctx is done.
func (c *connection) run(ctx context.Context) {
	c.logger.WithField("device_name", c.cfg.DeviceName).Info("Connection loop started")
	defer c.logger.Info("Connection loop stopped")

	c.backoff.reset()
	for ctx.Err() == nil {
		if c.isReady() {
			c.idle(ctx)
			continue
		}

		if err := c.attempt(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := c.backoff.next()
			c.logger.WithFields(logrus.Fields{
				"error":   err,
				"attempt": c.backoff.attempt,
				"delay":   delay,
			}).Warn("Connection attempt failed, retrying")
			c.sleep(ctx, delay)
		}
	}
}

// idle polls liveness while connected, handling transport events as they come.
func (c *connection) idle(ctx context.Context) {
	c.backoff.reset()

	timer := time.NewTimer(c.cfg.IdlePollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-c.events.C():
		c.processEvents()
	case <-timer.C:
	}
}

func (c *connection) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// attempt runs one scan/connect/ready cycle.
func (c *connection) attempt(ctx context.Context) error {
	c.state.publish(Scanning())

	adv, err := scanFor(ctx, c.radio, c.cfg.DeviceName, c.cfg.ScanTimeout, c.logger)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrDeviceNotFound) {
			c.state.publish(Disconnected("scan timeout / not found"))
		} else {
			c.state.publish(Errored("scan failed", err))
		}
		return err
	}

	c.state.publish(Connecting())

	prev := c.current()
	session := prev.session + 1

	connectCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	link, err := c.radio.Connect(connectCtx, adv.Addr(), &sessionCallbacks{c: c, session: session})
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.state.publish(Errored("connect failed", err))
		return err
	}

	gate := prev.gate
	if st, _ := gate.status(); st != gateNotReady {
		gate = newReadinessGate()
	}
	c.snap.Store(&linkSnapshot{
		session: session,
		link:    link,
		name:    adv.LocalName(),
		address: link.Address(),
		gate:    gate,
	})
	c.logger.WithFields(logrus.Fields{
		"address": link.Address(),
		"session": session,
	}).Debug("Link established, awaiting readiness")

	return c.awaitReady(ctx, session)
}

// awaitReady processes transport events until the session becomes ready,
// is torn down, or the connect timeout elapses.
func (c *connection) awaitReady(ctx context.Context, session uint64) error {
	deadline := time.NewTimer(c.cfg.ConnectTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(c.cfg.ReadyPollInterval)
	defer poll.Stop()

	for {
		c.processEvents()

		snap := c.current()
		if snap.session != session || snap.link == nil {
			return errSetupAborted
		}
		if snap.ready() {
			c.backoff.reset()
			c.state.publish(Connected(snap.name, snap.address))
			c.logger.WithFields(logrus.Fields{
				"device":  snap.name,
				"address": snap.address,
			}).Info("Connected")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.events.C():
		case <-poll.C:
			c.logger.WithField("session", session).Debug("Still waiting for readiness")
		case <-deadline.C:
			c.teardown(fmt.Sprintf("not ready within %s", c.cfg.ConnectTimeout))
			return errConnectTimeout
		}
	}
}

func (c *connection) processEvents() {
	for _, ev := range c.events.drain() {
		switch e := ev.(type) {
		case linkStateEvent:
			c.handleLinkState(e)
		case servicesDiscoveredEvent:
			c.handleServicesDiscovered(e)
		case forceDisconnectEvent:
			if c.isCurrent(e.session) {
				c.teardown(e.reason)
			}
		}
	}
}

func (c *connection) isCurrent(session uint64) bool {
	snap := c.current()
	return snap.session == session && snap.link != nil
}

func (c *connection) handleLinkState(e linkStateEvent) {
	if !c.isCurrent(e.session) {
		c.logger.WithFields(logrus.Fields{
			"session": e.session,
			"state":   e.state,
		}).Debug("Ignoring link state change of a stale session")
		return
	}

	if e.status != device.StatusSuccess {
		c.teardown(fmt.Sprintf("gatt error (%s)", e.status))
		return
	}

	switch e.state {
	case device.LinkConnected:
		if c.discovering == e.session {
			return
		}
		c.discovering = e.session
		if err := c.current().link.DiscoverServices(); err != nil {
			c.teardown(fmt.Sprintf("service discovery failed to start: %v", err))
		}
	case device.LinkDisconnected:
		c.teardown("link lost")
	default:
		c.logger.WithField("state", e.state).Debug("Link state changed")
	}
}

// handleServicesDiscovered resolves every channel, marks the gate ready and
// fires onReady. A missing required channel tears the link down.
func (c *connection) handleServicesDiscovered(e servicesDiscoveredEvent) {
	if !c.isCurrent(e.session) {
		return
	}
	if e.status != device.StatusSuccess {
		c.teardown(fmt.Sprintf("service discovery failed (%s)", e.status))
		return
	}

	snap := c.current()
	chars := make(map[Channel]device.Characteristic, len(channelInfo))
	for _, ch := range Channels() {
		h, err := snap.link.Characteristic(ServiceUUID, ch.UUID())
		if err != nil {
			if isRequired(ch) {
				c.teardown(fmt.Sprintf("required channel %s unavailable: %v", ch, err))
				return
			}
			c.logger.WithFields(logrus.Fields{
				"channel": ch,
				"error":   err,
			}).Debug("Optional channel not resolved")
			continue
		}
		chars[ch] = h
	}

	if !snap.link.RequestMTU(c.cfg.DesiredMTU) {
		c.logger.WithField("mtu", c.cfg.DesiredMTU).Debug("MTU request not accepted")
	}
	for _, ch := range Channels() {
		h, ok := chars[ch]
		if !ok || !h.CanNotify() {
			continue
		}
		if err := snap.link.SubscribeNotifications(h); err != nil {
			c.logger.WithFields(logrus.Fields{
				"channel": ch,
				"error":   err,
			}).Warn("Failed to subscribe to notifications")
		}
	}

	c.snap.Store(snap.withChars(chars))
	snap.gate.resolve()

	c.logger.WithFields(logrus.Fields{
		"session":  e.session,
		"channels": len(chars),
	}).Debug("Services resolved, link ready")

	if c.hooks.onReady != nil {
		c.hooks.onReady(e.session)
	}
}

func isRequired(ch Channel) bool {
	for _, r := range RequiredChannels {
		if r == ch {
			return true
		}
	}
	return false
}

// teardown is the single disconnect routine. It must only run on the loop
// goroutine, or after the loop has exited.
func (c *connection) teardown(reason string) {
	old := c.current()
	if old.link == nil {
		return
	}

	c.snap.Store(&linkSnapshot{session: old.session, gate: newReadinessGate()})
	old.gate.poison(reason)

	if c.hooks.onDisconnected != nil {
		c.hooks.onDisconnected(old.session, reason)
	}

	if err := old.link.Disconnect(); err != nil {
		c.logger.WithField("error", err).Debug("Disconnect reported an error")
	}
	if err := old.link.Close(); err != nil {
		c.logger.WithField("error", err).Debug("Close reported an error")
	}

	c.state.publish(Disconnected(reason))
	c.logger.WithFields(logrus.Fields{
		"address": old.address,
		"reason":  reason,
	}).Warn("Link torn down")
}

// forceDisconnect asks the loop to tear down session and waits until it did.
// A session that is already gone returns at once.
func (c *connection) forceDisconnect(ctx context.Context, session uint64, reason string) {
	snap := c.current()
	if snap.session != session || snap.link == nil {
		return
	}

	c.events.post(forceDisconnectEvent{session: session, reason: reason})

	select {
	case <-snap.gate.Poisoned():
	case <-ctx.Done():
	}
}

// waitReady blocks until a ready snapshot is available. A poisoned gate means
// retry on the replacement gate.
func (c *connection) waitReady(ctx context.Context) (*linkSnapshot, error) {
	for {
		snap := c.current()
		if snap.ready() {
			return snap, nil
		}

		pollCtx, cancel := context.WithTimeout(ctx, c.cfg.ReadyPollInterval)
		err := snap.gate.wait(pollCtx)
		cancel()

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var poisoned *errGatePoisoned
		if errors.As(err, &poisoned) {
			c.logger.WithField("reason", poisoned.reason).Debug("Readiness invalidated, waiting again")
		}
	}
}

// read issues a characteristic read; the value arrives on Incoming.
func (c *connection) read(ch Channel) error {
	snap := c.current()
	if !snap.ready() {
		return device.ErrNotConnected
	}
	h, ok := snap.chars[ch]
	if !ok {
		return &device.NotFoundError{Resource: "characteristic", UUIDs: []string{ServiceUUID, ch.UUID()}}
	}
	if !snap.link.ReadCharacteristic(h) {
		return fmt.Errorf("read of %s rejected by transport", ch)
	}
	return nil
}

func (c *connection) deliver(uuid string, data []byte) {
	ch, ok := channelForUUID(uuid)
	if !ok {
		c.logger.WithField("char_uuid", uuid).Debug("Data from unknown characteristic ignored")
		return
	}
	if dropped := c.incoming.Send(Inbound{Channel: ch, Data: data}); dropped {
		c.logger.WithField("channel", ch).Debug("Incoming buffer full, oldest payload dropped")
	}
}

// sessionCallbacks binds transport callbacks to the link session they were
// registered for. They never block.
type sessionCallbacks struct {
	c       *connection
	session uint64
}

func (cb *sessionCallbacks) OnConnectionStateChanged(status device.Status, state device.LinkState) {
	cb.c.events.post(linkStateEvent{session: cb.session, status: status, state: state})
}

func (cb *sessionCallbacks) OnServicesDiscovered(status device.Status) {
	cb.c.events.post(servicesDiscoveredEvent{session: cb.session, status: status})
}

func (cb *sessionCallbacks) OnCharacteristicWrite(uuid string, status device.Status) {
	if cb.c.hooks.onWriteAck != nil {
		cb.c.hooks.onWriteAck(cb.session, uuid, status)
	}
}

func (cb *sessionCallbacks) OnCharacteristicChanged(uuid string, data []byte) {
	cb.c.deliver(uuid, data)
}

func (cb *sessionCallbacks) OnCharacteristicRead(uuid string, data []byte, status device.Status) {
	if status != device.StatusSuccess {
		cb.c.logger.WithFields(logrus.Fields{
			"char_uuid": uuid,
			"status":    status,
		}).Warn("Characteristic read failed")
		return
	}
	cb.c.deliver(uuid, data)
}

func (cb *sessionCallbacks) OnMTUChanged(mtu int, status device.Status) {
	cb.c.logger.WithFields(logrus.Fields{
		"mtu":     mtu,
		"status":  status,
		"session": cb.session,
	}).Debug("MTU changed")
}

var _ device.Callbacks = (*sessionCallbacks)(nil)
