package ble

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/boonled/internal/device"
)

// WriteRequest is one characteristic write. Requests are matched to
// acknowledgments by identity, never by content.
type WriteRequest struct {
	Target     Channel
	Payload    []byte
	Kind       device.WriteKind
	Controller string // owning sub-controller, if any

	done   chan error    // buffered(1); nil for fire-and-forget
	queued chan struct{} // closed once the request enters the write queue; nil when nobody waits
	state  atomic.Int32  // requestPending, then requestTaken or requestWithdrawn
}

const (
	requestPending int32 = iota
	requestTaken
	requestWithdrawn
)

// claim hands the request to the writer. It fails for a withdrawn request.
func (r *WriteRequest) claim() bool {
	return r.state.CompareAndSwap(requestPending, requestTaken)
}

// withdraw cancels a request the writer has not claimed yet.
func (r *WriteRequest) withdraw() bool {
	return r.state.CompareAndSwap(requestPending, requestWithdrawn)
}

func (r *WriteRequest) markQueued() {
	if r.queued != nil {
		close(r.queued)
	}
}

func (r *WriteRequest) finish(err error) {
	if r.done == nil {
		return
	}
	select {
	case r.done <- err:
	default:
	}
}

// inflightWrite is the single write awaiting acknowledgment.
type inflightWrite struct {
	req        *WriteRequest
	session    uint64
	uuid       string
	configured *configuredSet

	ack      chan device.Status // buffered(1)
	lost     chan struct{}
	lostOnce sync.Once
}

func (w *inflightWrite) markLost() {
	w.lostOnce.Do(func() { close(w.lost) })
}

// writer drains the queue one request at a time. A request is issued only
// after the previous one was acknowledged, failed or timed out, and any
// failure forces a disconnect before the next request can be written.
type writer struct {
	conn       *connection
	gate       *controllerGate
	journal    *journal
	logger     *logrus.Logger
	ackTimeout time.Duration

	current atomic.Pointer[inflightWrite]
}

func (w *writer) run(ctx context.Context, queue <-chan *WriteRequest) {
	w.logger.Debug("Write loop started")
	defer w.logger.Debug("Write loop stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-queue:
			w.process(ctx, req)
		}
	}
}

func (w *writer) process(ctx context.Context, req *WriteRequest) {
	if !req.claim() {
		w.logger.WithField("channel", req.Target).Debug("Withdrawn write skipped")
		return
	}
	started := time.Now()

	err := w.write(ctx, req)
	if err != nil && ctx.Err() != nil {
		err = ErrStopped
	}
	w.journal.record(WriteOutcome{
		Target:     req.Target,
		Controller: req.Controller,
		Size:       len(req.Payload),
		Err:        err,
		Started:    started,
		Elapsed:    time.Since(started),
	})
	req.finish(err)

	fields := logrus.Fields{
		"channel":    req.Target,
		"controller": req.Controller,
		"bytes":      len(req.Payload),
		"elapsed":    time.Since(started),
	}
	if err != nil {
		fields["error"] = err
		w.logger.WithFields(fields).Warn("Write dropped")
		return
	}
	w.logger.WithFields(fields).Debug("Write acknowledged")
}

func (w *writer) write(ctx context.Context, req *WriteRequest) error {
	snap, err := w.conn.waitReady(ctx)
	if err != nil {
		return err
	}

	h, ok := snap.chars[req.Target]
	if !ok {
		return &device.NotFoundError{Resource: "characteristic", UUIDs: []string{ServiceUUID, req.Target.UUID()}}
	}

	inf := &inflightWrite{
		req:        req,
		session:    snap.session,
		uuid:       h.UUID(),
		configured: w.gate.currentSet(),
		ack:        make(chan device.Status, 1),
		lost:       make(chan struct{}),
	}
	w.current.Store(inf)
	defer w.current.CompareAndSwap(inf, nil)

	if !snap.link.WriteCharacteristic(h, req.Payload, req.Kind) {
		w.conn.forceDisconnect(ctx, snap.session, fmt.Sprintf("write to %s rejected", req.Target))
		return ErrWriteRejected
	}

	timer := time.NewTimer(w.ackTimeout)
	defer timer.Stop()

	select {
	case status := <-inf.ack:
		if status != device.StatusSuccess {
			w.conn.forceDisconnect(ctx, snap.session, fmt.Sprintf("write to %s failed (%s)", req.Target, status))
			return fmt.Errorf("%w: %s", ErrWriteFailed, status)
		}
		w.onSuccess(inf)
		return nil
	case <-inf.lost:
		return ErrLinkLost
	case <-timer.C:
		w.conn.forceDisconnect(ctx, snap.session, fmt.Sprintf("write to %s not acknowledged within %s", req.Target, w.ackTimeout))
		return ErrAckTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *writer) onSuccess(inf *inflightWrite) {
	if inf.req.Target == CtrlTypeSet && inf.req.Controller != "" {
		w.gate.markConfigured(inf.configured, inf.req.Controller)
	}
}

// ack matches a transport acknowledgment to the in-flight write. The
// peripheral sends no correlation id, so the in-flight write is the match.
func (w *writer) ack(session uint64, uuid string, status device.Status) {
	inf := w.current.Load()
	if inf == nil || inf.session != session {
		w.logger.WithFields(logrus.Fields{
			"char_uuid": uuid,
			"session":   session,
		}).Debug("Acknowledgment without a matching in-flight write dropped")
		return
	}
	if uuid != "" && device.NormalizeUUID(uuid) != device.NormalizeUUID(inf.uuid) {
		w.logger.WithFields(logrus.Fields{
			"char_uuid": uuid,
			"inflight":  inf.uuid,
		}).Debug("Acknowledgment characteristic differs from in-flight write")
	}

	select {
	case inf.ack <- status:
	default:
		w.logger.WithField("char_uuid", uuid).Debug("Duplicate acknowledgment dropped")
	}
}

// linkLost releases the in-flight write of a session that was torn down.
func (w *writer) linkLost(session uint64) {
	if inf := w.current.Load(); inf != nil && inf.session == session {
		inf.markLost()
	}
}
