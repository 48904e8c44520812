package ble

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(timeout time.Duration) *controllerGate {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return newControllerGate(timeout, logger)
}

// recordingEnqueue collects enqueued requests and optionally acknowledges
// configuration writes against the set current at enqueue time.
type recordingEnqueue struct {
	mu   sync.Mutex
	reqs []*WriteRequest
	gate *controllerGate
	ack  bool
}

func (r *recordingEnqueue) enqueue(_ context.Context, req *WriteRequest) error {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	if r.ack && req.Target == CtrlTypeSet {
		set := r.gate.currentSet()
		go r.gate.markConfigured(set, req.Controller)
	}
	return nil
}

func (r *recordingEnqueue) requests() []*WriteRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*WriteRequest(nil), r.reqs...)
}

func TestControllerGate_RecordKeepsRegistrationOrder(t *testing.T) {
	g := newTestGate(time.Second)

	g.record("2", []byte("two"))
	g.record("1", []byte("one"))
	g.record("2", []byte("two-v2"))

	configs := g.pendingConfigs()
	require.Len(t, configs, 2)
	assert.Equal(t, "2", configs[0].id)
	assert.Equal(t, []byte("two-v2"), configs[0].payload)
	assert.Equal(t, "1", configs[1].id)

	payload, ok := g.pendingPayload("1")
	require.True(t, ok)
	assert.Equal(t, []byte("one"), payload)

	_, ok = g.pendingPayload("3")
	assert.False(t, ok)
}

func TestControllerGate_RecordCopiesPayload(t *testing.T) {
	g := newTestGate(time.Second)
	buf := []byte("abc")
	g.record("1", buf)
	buf[0] = 'x'

	payload, _ := g.pendingPayload("1")
	assert.Equal(t, []byte("abc"), payload)
}

func TestControllerGate_WaitPendingTimesOut(t *testing.T) {
	g := newTestGate(30 * time.Millisecond)

	_, err := g.waitPending(context.Background(), "4")
	assert.ErrorIs(t, err, ErrControllerNotRegistered)
}

func TestControllerGate_WaitPendingWakesOnRecord(t *testing.T) {
	g := newTestGate(time.Second)

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.record("3", []byte("late"))
	}()

	payload, err := g.waitPending(context.Background(), "3")
	require.NoError(t, err)
	assert.Equal(t, []byte("late"), payload)
}

func TestControllerGate_ClearForgetsConfigured(t *testing.T) {
	g := newTestGate(time.Second)

	g.markConfigured(g.currentSet(), "1")
	assert.True(t, g.isConfigured("1"))

	g.clear()
	assert.False(t, g.isConfigured("1"))
}

func TestControllerGate_StaleAckDoesNotLeak(t *testing.T) {
	g := newTestGate(time.Second)

	issuedOn := g.currentSet()
	g.clear()
	g.markConfigured(issuedOn, "1")

	assert.False(t, g.isConfigured("1"), "ack for a previous link must not mark the current one")
}

func TestControllerGate_WaitConfigured(t *testing.T) {
	g := newTestGate(time.Second)

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.markConfigured(g.currentSet(), "2")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, g.waitConfigured(ctx, "2"))

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	assert.ErrorIs(t, g.waitConfigured(short, "3"), context.DeadlineExceeded)
}

func TestControllerGate_EnsureConfigured(t *testing.T) {
	g := newTestGate(time.Second)
	g.record("1", []byte(`{"1":{"Type":"RGBW"}}`))
	rec := &recordingEnqueue{gate: g, ack: true}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, g.ensureConfigured(ctx, "1", rec.enqueue))

	reqs := rec.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, CtrlTypeSet, reqs[0].Target)
	assert.Equal(t, "1", reqs[0].Controller)
	assert.Equal(t, []byte(`{"1":{"Type":"RGBW"}}`), reqs[0].Payload)

	// already configured: nothing is enqueued
	require.NoError(t, g.ensureConfigured(ctx, "1", rec.enqueue))
	assert.Len(t, rec.requests(), 1)
}

func TestControllerGate_EnsureConfiguredUnregistered(t *testing.T) {
	g := newTestGate(20 * time.Millisecond)
	rec := &recordingEnqueue{gate: g}

	err := g.ensureConfigured(context.Background(), "9", rec.enqueue)
	assert.ErrorIs(t, err, ErrControllerNotRegistered)
	assert.Empty(t, rec.requests())
}

func TestControllerGate_ReplayInRegistrationOrder(t *testing.T) {
	g := newTestGate(time.Second)
	g.record("3", []byte("c"))
	g.record("1", []byte("a"))
	g.record("2", []byte("b"))
	rec := &recordingEnqueue{gate: g}

	g.replay(context.Background(), rec.enqueue)

	reqs := rec.requests()
	require.Len(t, reqs, 3)
	for i, id := range []string{"3", "1", "2"} {
		assert.Equal(t, id, reqs[i].Controller)
		assert.Equal(t, CtrlTypeSet, reqs[i].Target)
	}
}

func TestControllerGate_ReplayStopsOnEnqueueError(t *testing.T) {
	g := newTestGate(time.Second)
	g.record("1", []byte("a"))
	g.record("2", []byte("b"))

	calls := 0
	g.replay(context.Background(), func(context.Context, *WriteRequest) error {
		calls++
		return ErrStopped
	})
	assert.Equal(t, 1, calls)
}
