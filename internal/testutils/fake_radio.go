package testutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/boonled/internal/device"
)

// AckMode selects how the fake peripheral acknowledges writes.
type AckMode int

const (
	// AckManual leaves acknowledgments to FakeRadio.Ack.
	AckManual AckMode = iota
	// AckSuccess acknowledges every write with StatusSuccess.
	AckSuccess
	// AckFailure acknowledges every write with StatusFailure.
	AckFailure
)

// ErrFakeConnect is returned by Connect while connect failures are scheduled.
var ErrFakeConnect = errors.New("fake: connect failed")

// FakeWrite is one characteristic write observed by the fake radio.
type FakeWrite struct {
	Link int // 1-based index of the link that carried the write
	UUID string
	Data []byte
	Kind device.WriteKind
}

// FakeCharacteristic is a characteristic exposed by the fake peripheral.
type FakeCharacteristic struct {
	uuid   string
	notify bool
}

// NewFakeCharacteristic creates a characteristic; notify marks it subscribable.
func NewFakeCharacteristic(uuid string, notify bool) *FakeCharacteristic {
	return &FakeCharacteristic{uuid: uuid, notify: notify}
}

func (c *FakeCharacteristic) UUID() string    { return c.uuid }
func (c *FakeCharacteristic) CanNotify() bool { return c.notify }

// FakeRadio is an in-memory device.Radio. It finds the configured
// advertisements, hands out links to one GATT service and records every write
// together with how many writes were unacknowledged at once.
//
// Callbacks are delivered like a real stack: LinkConnected inline from
// Connect, everything else from separate goroutines.
type FakeRadio struct {
	logger *logrus.Logger

	mu              sync.Mutex
	adverts         []device.Advertisement
	scanErr         error
	failConnects    int
	serviceUUID     string
	chars           map[string]*FakeCharacteristic
	discoveryStatus device.Status
	ackMode         AckMode
	ackDelay        time.Duration
	rejectWrites    bool
	readValues      map[string][]byte

	links       []*FakeLink
	writes      []FakeWrite
	inFlight    int
	maxInFlight int
	scans       int
	connects    int
	subscribed  []string
	mtuRequests []int
}

// NewFakeRadio creates a radio with no peripherals that acknowledges writes manually.
func NewFakeRadio(logger *logrus.Logger) *FakeRadio {
	if logger == nil {
		logger = logrus.New()
	}
	return &FakeRadio{
		logger:     logger,
		chars:      make(map[string]*FakeCharacteristic),
		readValues: make(map[string][]byte),
	}
}

// WithPeripheral makes scans report a connectable peripheral with the given name.
func (r *FakeRadio) WithPeripheral(name, address string) *FakeRadio {
	return r.WithAdvertisement(NewAdvertisementBuilder().WithName(name).WithAddress(address).Build())
}

// WithAdvertisement adds an advertisement reported by every scan.
func (r *FakeRadio) WithAdvertisement(adv device.Advertisement) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adverts = append(r.adverts, adv)
	return r
}

// WithService sets the GATT service and its characteristics.
func (r *FakeRadio) WithService(uuid string, chars ...*FakeCharacteristic) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.serviceUUID = uuid
	r.chars = make(map[string]*FakeCharacteristic, len(chars))
	for _, c := range chars {
		r.chars[device.NormalizeUUID(c.uuid)] = c
	}
	return r
}

// WithAckMode selects how writes are acknowledged.
func (r *FakeRadio) WithAckMode(mode AckMode) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ackMode = mode
	return r
}

// WithAckDelay delays automatic acknowledgments.
func (r *FakeRadio) WithAckDelay(d time.Duration) *FakeRadio {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ackDelay = d
	return r
}

// SetScanError makes every scan fail with err (nil restores scanning).
func (r *FakeRadio) SetScanError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanErr = err
}

// FailNextConnects makes the next n Connect calls fail.
func (r *FakeRadio) FailNextConnects(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failConnects = n
}

// SetDiscoveryStatus sets the status reported by service discovery.
func (r *FakeRadio) SetDiscoveryStatus(status device.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discoveryStatus = status
}

// SetRejectWrites makes WriteCharacteristic refuse the call.
func (r *FakeRadio) SetRejectWrites(reject bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejectWrites = reject
}

// SetAckMode switches the acknowledgment mode at runtime.
func (r *FakeRadio) SetAckMode(mode AckMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ackMode = mode
}

// SetReadValue sets the value returned by reads of uuid.
func (r *FakeRadio) SetReadValue(uuid string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readValues[device.NormalizeUUID(uuid)] = data
}

// Scan reports every configured advertisement, then blocks until ctx ends.
func (r *FakeRadio) Scan(ctx context.Context, _ bool, handler func(device.Advertisement)) error {
	r.mu.Lock()
	r.scans++
	adverts := append([]device.Advertisement(nil), r.adverts...)
	err := r.scanErr
	r.mu.Unlock()

	if err != nil {
		return err
	}
	for _, adv := range adverts {
		if ctx.Err() != nil {
			break
		}
		handler(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}

// Connect opens a new link and reports LinkConnected before returning.
func (r *FakeRadio) Connect(ctx context.Context, address string, callbacks device.Callbacks) (device.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.connects++
	if r.failConnects > 0 {
		r.failConnects--
		r.mu.Unlock()
		return nil, ErrFakeConnect
	}
	link := &FakeLink{radio: r, index: len(r.links) + 1, address: address, callbacks: callbacks}
	r.links = append(r.links, link)
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"address": address,
		"link":    link.index,
	}).Debug("fake radio: link opened")

	callbacks.OnConnectionStateChanged(device.StatusSuccess, device.LinkConnected)
	return link, nil
}

// Ack acknowledges the oldest unacknowledged write of the open link.
// Reports false when there is nothing to acknowledge.
func (r *FakeRadio) Ack(status device.Status) bool {
	link := r.OpenLink()
	if link == nil {
		return false
	}
	return link.ack(status)
}

// DropLink simulates the peripheral going away.
func (r *FakeRadio) DropLink() bool {
	link := r.OpenLink()
	if link == nil {
		return false
	}
	link.close()
	link.callbacks.OnConnectionStateChanged(device.StatusSuccess, device.LinkDisconnected)
	return true
}

// Notify pushes a notification on the open link.
func (r *FakeRadio) Notify(uuid string, data []byte) bool {
	link := r.OpenLink()
	if link == nil {
		return false
	}
	link.callbacks.OnCharacteristicChanged(uuid, data)
	return true
}

// OpenLink returns the most recent link that is still open.
func (r *FakeRadio) OpenLink() *FakeLink {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.links) - 1; i >= 0; i-- {
		if !r.links[i].closed {
			return r.links[i]
		}
	}
	return nil
}

// Writes returns every write observed so far.
func (r *FakeRadio) Writes() []FakeWrite {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]FakeWrite(nil), r.writes...)
}

// WritesTo returns the writes to one characteristic.
func (r *FakeRadio) WritesTo(uuid string) []FakeWrite {
	norm := device.NormalizeUUID(uuid)
	var out []FakeWrite
	for _, w := range r.Writes() {
		if device.NormalizeUUID(w.UUID) == norm {
			out = append(out, w)
		}
	}
	return out
}

// WaitForWrites polls until at least n writes were observed.
func (r *FakeRadio) WaitForWrites(n int, timeout time.Duration) ([]FakeWrite, bool) {
	deadline := time.Now().Add(timeout)
	for {
		writes := r.Writes()
		if len(writes) >= n {
			return writes, true
		}
		if time.Now().After(deadline) {
			return writes, false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// MaxInFlight is the largest number of writes that were unacknowledged at once.
func (r *FakeRadio) MaxInFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxInFlight
}

func (r *FakeRadio) ScanCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scans
}

func (r *FakeRadio) ConnectCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connects
}

// LinkCount is the number of links opened so far.
func (r *FakeRadio) LinkCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.links)
}

func (r *FakeRadio) Subscribed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.subscribed...)
}

func (r *FakeRadio) MTURequests() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.mtuRequests...)
}

var _ device.Radio = (*FakeRadio)(nil)

// FakeLink is one connection handed out by FakeRadio.
type FakeLink struct {
	radio     *FakeRadio
	index     int
	address   string
	callbacks device.Callbacks

	// guarded by radio.mu
	closed  bool
	pending []string
}

func (l *FakeLink) Address() string { return l.address }

// Index is the 1-based order in which the link was opened.
func (l *FakeLink) Index() int { return l.index }

func (l *FakeLink) isOpen() bool {
	l.radio.mu.Lock()
	defer l.radio.mu.Unlock()
	return !l.closed
}

func (l *FakeLink) DiscoverServices() error {
	if !l.isOpen() {
		return device.ErrNotConnected
	}
	go func() {
		l.radio.mu.Lock()
		status := l.radio.discoveryStatus
		l.radio.mu.Unlock()
		if l.isOpen() {
			l.callbacks.OnServicesDiscovered(status)
		}
	}()
	return nil
}

func (l *FakeLink) Characteristic(service, uuid string) (device.Characteristic, error) {
	l.radio.mu.Lock()
	defer l.radio.mu.Unlock()

	if l.radio.serviceUUID == "" || device.NormalizeUUID(service) != device.NormalizeUUID(l.radio.serviceUUID) {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{service}}
	}
	c, ok := l.radio.chars[device.NormalizeUUID(uuid)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, uuid}}
	}
	return c, nil
}

func (l *FakeLink) WriteCharacteristic(c device.Characteristic, data []byte, kind device.WriteKind) bool {
	r := l.radio
	r.mu.Lock()
	if l.closed || r.rejectWrites {
		r.mu.Unlock()
		return false
	}
	r.writes = append(r.writes, FakeWrite{
		Link: l.index,
		UUID: c.UUID(),
		Data: append([]byte(nil), data...),
		Kind: kind,
	})
	l.pending = append(l.pending, c.UUID())
	r.inFlight++
	if r.inFlight > r.maxInFlight {
		r.maxInFlight = r.inFlight
	}
	mode, delay := r.ackMode, r.ackDelay
	r.mu.Unlock()

	switch mode {
	case AckSuccess:
		go l.ackAfter(delay, device.StatusSuccess)
	case AckFailure:
		go l.ackAfter(delay, device.StatusFailure)
	}
	return true
}

func (l *FakeLink) ackAfter(delay time.Duration, status device.Status) {
	if delay > 0 {
		time.Sleep(delay)
	}
	l.ack(status)
}

func (l *FakeLink) ack(status device.Status) bool {
	r := l.radio
	r.mu.Lock()
	if l.closed || len(l.pending) == 0 {
		r.mu.Unlock()
		return false
	}
	uuid := l.pending[0]
	l.pending = l.pending[1:]
	r.inFlight--
	r.mu.Unlock()

	l.callbacks.OnCharacteristicWrite(uuid, status)
	return true
}

func (l *FakeLink) ReadCharacteristic(c device.Characteristic) bool {
	r := l.radio
	r.mu.Lock()
	if l.closed {
		r.mu.Unlock()
		return false
	}
	value := append([]byte(nil), r.readValues[device.NormalizeUUID(c.UUID())]...)
	r.mu.Unlock()

	go l.callbacks.OnCharacteristicRead(c.UUID(), value, device.StatusSuccess)
	return true
}

func (l *FakeLink) SubscribeNotifications(c device.Characteristic) error {
	if !c.CanNotify() {
		return device.ErrUnsupported
	}
	l.radio.mu.Lock()
	defer l.radio.mu.Unlock()
	if l.closed {
		return device.ErrNotConnected
	}
	l.radio.subscribed = append(l.radio.subscribed, c.UUID())
	return nil
}

func (l *FakeLink) RequestMTU(mtu int) bool {
	l.radio.mu.Lock()
	if l.closed {
		l.radio.mu.Unlock()
		return false
	}
	l.radio.mtuRequests = append(l.radio.mtuRequests, mtu)
	l.radio.mu.Unlock()

	go l.callbacks.OnMTUChanged(mtu, device.StatusSuccess)
	return true
}

// close marks the link closed; its unacknowledged writes are lost.
func (l *FakeLink) close() {
	l.radio.mu.Lock()
	defer l.radio.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.radio.inFlight -= len(l.pending)
	l.pending = nil
}

func (l *FakeLink) Disconnect() error {
	l.close()
	return nil
}

func (l *FakeLink) Close() error {
	l.close()
	return nil
}

var _ device.Link = (*FakeLink)(nil)
