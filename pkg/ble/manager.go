package ble

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/boonled/internal/device"
	"github.com/srg/boonled/internal/groutine"
	"github.com/srg/boonled/internal/ringchan"
	"github.com/srg/boonled/pkg/config"
)

// Inbound is a payload received from the peripheral by notification or read.
type Inbound struct {
	Channel Channel
	Data    []byte
}

// Manager is the single entry point to the BoonLED peripheral.
//
// All Try* methods never block and report acceptance into the pipeline, not
// delivery. Blocking methods fail with ErrStopped when the manager is not
// running; link failures are retried internally and only show up in the
// connection state stream.
type Manager struct {
	cfg    *config.Config
	logger *logrus.Logger

	state    *stateHolder
	incoming *ringchan.RingChannel[Inbound]
	conn     *connection
	writer   *writer
	gate     *controllerGate
	journal  *journal

	lifecycle sync.Mutex // serializes Start and Stop
	mu        sync.Mutex
	run       *managerRun
}

// managerRun is the state of one Start..Stop cycle.
type managerRun struct {
	ctx     context.Context
	cancel  context.CancelFunc
	group   groutine.Group
	backlog *backlog
	queue   chan *WriteRequest
}

// NewManager creates a stopped manager. A nil cfg uses the defaults.
func NewManager(radio device.Radio, cfg *config.Config, logger *logrus.Logger) *Manager {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	m := &Manager{
		cfg:      cfg,
		logger:   logger,
		state:    newStateHolder(),
		incoming: ringchan.New[Inbound](cfg.IncomingBuffer),
		gate:     newControllerGate(cfg.ConfigRegistrationTimeout, logger),
		journal:  newJournal(cfg.JournalSize),
	}
	m.conn = newConnection(radio, cfg, logger, m.state, m.incoming)
	m.writer = &writer{
		conn:       m.conn,
		gate:       m.gate,
		journal:    m.journal,
		logger:     logger,
		ackTimeout: cfg.AckTimeout,
	}
	m.conn.hooks = connectionHooks{
		onReady:        m.onLinkReady,
		onDisconnected: m.onLinkDown,
		onWriteAck:     m.writer.ack,
	}
	return m
}

// Start launches the connection and write loops. Calling it while running is a no-op.
func (m *Manager) Start() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.run != nil {
		m.logger.Debug("Manager already started")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &managerRun{
		ctx:     ctx,
		cancel:  cancel,
		backlog: newBacklog(m.logger),
		queue:   make(chan *WriteRequest, m.cfg.QueueSize),
	}
	m.run = r

	r.group.Go(ctx, "ble-connection-loop", m.conn.run)
	r.group.Go(ctx, "ble-backlog-pump", func(ctx context.Context) {
		r.backlog.pump(ctx, r.queue)
	})
	r.group.Go(ctx, "ble-write-loop", func(ctx context.Context) {
		m.writer.run(ctx, r.queue)
	})

	m.logger.WithField("device_name", m.cfg.DeviceName).Info("BLE manager started")
}

// Stop cancels both loops, fails queued writes with ErrStopped, closes the
// link and returns to Idle. Calling it while stopped is a no-op.
func (m *Manager) Stop() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	r := m.run
	m.run = nil
	m.mu.Unlock()

	if r == nil {
		return
	}

	r.cancel()
	r.group.Wait()

	dropped := 0
	for _, req := range r.backlog.close() {
		req.finish(ErrStopped)
		dropped++
	}
	for drained := false; !drained; {
		select {
		case req := <-r.queue:
			req.finish(ErrStopped)
			dropped++
		default:
			drained = true
		}
	}

	m.conn.teardown("stopped")
	m.state.publish(Idle())

	m.logger.WithField("dropped_writes", dropped).Info("BLE manager stopped")
}

func (m *Manager) activeRun() *managerRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run
}

// IsRunning reports whether Start was called without a matching Stop.
func (m *Manager) IsRunning() bool {
	return m.activeRun() != nil
}

// IsReady reports whether writes can be issued right now.
func (m *Manager) IsReady() bool {
	return m.conn.isReady()
}

// ConnectionState returns the current state.
func (m *Manager) ConnectionState() ConnectionState {
	return m.state.get()
}

// SubscribeState streams state changes, starting with the current state.
// Call cancel to release the subscription.
func (m *Manager) SubscribeState() (<-chan ConnectionState, func()) {
	return m.state.subscribe()
}

// Incoming streams notification and read payloads. The oldest payload is
// dropped when the reader falls behind.
func (m *Manager) Incoming() <-chan Inbound {
	return m.incoming.C()
}

// Send suspends until the write is accepted into the queue, not until it is acknowledged.
func (m *Manager) Send(ctx context.Context, ch Channel, payload []byte) error {
	return m.enqueue(ctx, m.activeRun(), newRequest(ch, payload, ""))
}

// TrySend schedules a write without blocking. Reports false only when stopped.
func (m *Manager) TrySend(ch Channel, payload []byte) bool {
	r := m.activeRun()
	if r == nil || r.ctx.Err() != nil {
		return false
	}
	return m.schedule(r, newRequest(ch, payload, ""))
}

// SendForController makes sure controller id is configured on the current
// link, then enqueues the write tagged with id.
func (m *Manager) SendForController(ctx context.Context, id string, ch Channel, payload []byte) error {
	return m.sendForController(ctx, m.activeRun(), id, ch, payload)
}

func (m *Manager) sendForController(ctx context.Context, r *managerRun, id string, ch Channel, payload []byte) error {
	if r == nil {
		return ErrStopped
	}
	ctx, cancel := scoped(ctx, r)
	defer cancel()

	if err := m.gate.ensureConfigured(ctx, id, m.enqueuer(r)); err != nil {
		return stoppedOr(ctx, err)
	}
	return stoppedOr(ctx, m.enqueue(ctx, r, newRequest(ch, payload, id)))
}

// TrySendForController is SendForController in the background. Failures,
// including an unregistered controller, are logged.
func (m *Manager) TrySendForController(id string, ch Channel, payload []byte) bool {
	r := m.activeRun()
	if r == nil || r.ctx.Err() != nil {
		return false
	}
	if m.gate.isConfigured(id) {
		return m.schedule(r, newRequest(ch, payload, id))
	}

	return m.spawn(r, "ble-send-for-controller", func(ctx context.Context) {
		if err := m.sendForController(ctx, r, id, ch, payload); err != nil {
			m.logger.WithFields(logrus.Fields{
				"controller": id,
				"channel":    ch,
				"error":      err,
			}).Warn("Controller write not sent")
		}
	})
}

// ConfigureController records payload as the type configuration of id and
// enqueues it. The configuration is replayed after every reconnect.
func (m *Manager) ConfigureController(ctx context.Context, id string, payload []byte) error {
	r := m.activeRun()
	if r == nil || r.ctx.Err() != nil {
		return ErrStopped
	}
	m.gate.record(id, payload)
	return m.enqueue(ctx, r, configRequest(id, payload))
}

// TryConfigureController is ConfigureController without blocking.
func (m *Manager) TryConfigureController(id string, payload []byte) bool {
	r := m.activeRun()
	if r == nil || r.ctx.Err() != nil {
		return false
	}
	m.gate.record(id, payload)
	return m.schedule(r, configRequest(id, payload))
}

// IsConfigured reports whether id was configured on the current link.
func (m *Manager) IsConfigured(id string) bool {
	return m.gate.isConfigured(id)
}

// WaitConfigured blocks until id is configured on the current link.
func (m *Manager) WaitConfigured(ctx context.Context, id string) error {
	r := m.activeRun()
	if r == nil {
		return ErrStopped
	}
	ctx, cancel := scoped(ctx, r)
	defer cancel()
	return stoppedOr(ctx, m.gate.waitConfigured(ctx, id))
}

// SendWait enqueues req and blocks until the peripheral acknowledged it or
// the write failed. A request with a Controller is gated like SendForController.
func (m *Manager) SendWait(ctx context.Context, req WriteRequest) error {
	r := m.activeRun()
	if r == nil {
		return ErrStopped
	}
	ctx, cancel := scoped(ctx, r)
	defer cancel()

	if req.Controller != "" && req.Target != CtrlTypeSet {
		if err := m.gate.ensureConfigured(ctx, req.Controller, m.enqueuer(r)); err != nil {
			return stoppedOr(ctx, err)
		}
	}

	done := make(chan error, 1)
	req.Payload = append([]byte(nil), req.Payload...)
	req.done = done
	if err := m.enqueue(ctx, r, &req); err != nil {
		return stoppedOr(ctx, err)
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return stoppedOr(ctx, ctx.Err())
	}
}

// RequestRead asks the peripheral for the value of ch; it arrives on Incoming.
func (m *Manager) RequestRead(ch Channel) error {
	if m.activeRun() == nil {
		return ErrStopped
	}
	return m.conn.read(ch)
}

// RecentWrites returns and clears the journal of processed writes, oldest first.
func (m *Manager) RecentWrites() []WriteOutcome {
	return m.journal.drain()
}

// DroppedWriteRecords counts journal entries overwritten before RecentWrites read them.
func (m *Manager) DroppedWriteRecords() int64 {
	return m.journal.dropped()
}

// DroppedIncoming counts payloads discarded because Incoming was not read in time.
func (m *Manager) DroppedIncoming() int64 {
	return m.incoming.GetMetrics().Overwritten
}

func newRequest(ch Channel, payload []byte, controller string) *WriteRequest {
	return &WriteRequest{
		Target:     ch,
		Payload:    append([]byte(nil), payload...),
		Controller: controller,
	}
}

// enqueue appends req to the backlog and waits until it enters the write
// queue. A request withdrawn on ctx expiry is never written.
func (m *Manager) enqueue(ctx context.Context, r *managerRun, req *WriteRequest) error {
	if r == nil || r.ctx.Err() != nil {
		return ErrStopped
	}
	req.queued = make(chan struct{})
	ticket, err := r.backlog.push(req)
	if err != nil {
		return err
	}

	select {
	case <-req.queued:
		return nil
	case <-r.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		if req.withdraw() {
			r.backlog.withdraw(ticket)
			return ctx.Err()
		}
		// the writer already claimed req
		return nil
	}
}

func (m *Manager) enqueuer(r *managerRun) enqueueFunc {
	return func(ctx context.Context, req *WriteRequest) error {
		return m.enqueue(ctx, r, req)
	}
}

// schedule appends req to the backlog without waiting. Reports false once
// the run is stopping.
func (m *Manager) schedule(r *managerRun, req *WriteRequest) bool {
	if _, err := r.backlog.push(req); err != nil {
		m.logger.WithField("channel", req.Target).Debug("Write not scheduled, manager stopping")
		return false
	}
	return true
}

// spawn starts fn in the run's group only while r is still the active run,
// so no goroutine joins a group that Stop is already waiting on.
func (m *Manager) spawn(r *managerRun, name string, fn func(ctx context.Context)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.run != r || r.ctx.Err() != nil {
		return false
	}
	r.group.Go(r.ctx, name, fn)
	return true
}

func (m *Manager) onLinkReady(uint64) {
	r := m.activeRun()
	if r == nil {
		return
	}
	m.spawn(r, "ble-config-replay", func(ctx context.Context) {
		m.gate.replay(ctx, m.enqueuer(r))
	})
}

func (m *Manager) onLinkDown(session uint64, reason string) {
	m.gate.clear()
	m.writer.linkLost(session)
	m.logger.WithFields(logrus.Fields{
		"session": session,
		"reason":  reason,
	}).Debug("Configured controllers cleared")
}

// scoped derives a context that is also cancelled, with cause ErrStopped,
// when the run ends.
func scoped(ctx context.Context, r *managerRun) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(r.ctx, func() { cancel(ErrStopped) })
	return ctx, func() {
		stop()
		cancel(nil)
	}
}

// stoppedOr maps a cancellation caused by Stop to ErrStopped.
func stoppedOr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(context.Cause(ctx), ErrStopped) {
		return ErrStopped
	}
	return err
}
