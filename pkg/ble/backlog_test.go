package ble

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBacklog_PopInPushOrder(t *testing.T) {
	b := newBacklog(logrus.New())
	first := newRequest(LedSet, []byte("1"), "")
	second := newRequest(BrightSet, []byte("2"), "")

	_, err := b.push(first)
	require.NoError(t, err)
	_, err = b.push(second)
	require.NoError(t, err)

	got, ok := b.pop()
	require.True(t, ok)
	assert.Same(t, first, got)
	got, ok = b.pop()
	require.True(t, ok)
	assert.Same(t, second, got)

	_, ok = b.pop()
	assert.False(t, ok)
}

func TestBacklog_Withdraw(t *testing.T) {
	b := newBacklog(logrus.New())
	kept := newRequest(LedSet, []byte("kept"), "")
	dropped := newRequest(LedSet, []byte("dropped"), "")

	_, _ = b.push(kept)
	ticket, _ := b.push(dropped)

	assert.True(t, b.withdraw(ticket))
	assert.False(t, b.withdraw(ticket), "a ticket is withdrawn once")

	got, ok := b.pop()
	require.True(t, ok)
	assert.Same(t, kept, got)
	_, ok = b.pop()
	assert.False(t, ok)
}

func TestBacklog_CloseRejectsPushes(t *testing.T) {
	b := newBacklog(logrus.New())
	waiting := newRequest(LedSet, []byte("x"), "")
	_, _ = b.push(waiting)

	left := b.close()
	require.Len(t, left, 1)
	assert.Same(t, waiting, left[0])

	_, err := b.push(newRequest(LedSet, nil, ""))
	assert.ErrorIs(t, err, ErrStopped)
	assert.Empty(t, b.close())
}

func TestBacklog_PumpPreservesOrderAndSkipsWithdrawn(t *testing.T) {
	b := newBacklog(logrus.New())
	queue := make(chan *WriteRequest, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reqs := make([]*WriteRequest, 5)
	for i := range reqs {
		reqs[i] = newRequest(LedSet, []byte{byte(i)}, "")
		reqs[i].queued = make(chan struct{})
		_, err := b.push(reqs[i])
		require.NoError(t, err)
	}
	require.True(t, reqs[2].withdraw())

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.pump(ctx, queue)
	}()

	var got []byte
	for len(got) < 4 {
		select {
		case req := <-queue:
			got = append(got, req.Payload[0])
		case <-time.After(time.Second):
			t.Fatalf("pump stalled after %v", got)
		}
	}
	assert.Equal(t, []byte{0, 1, 3, 4}, got)

	select {
	case <-reqs[4].queued:
	default:
		t.Fatal("queued request was not marked")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not stop")
	}
}

func TestBacklog_PumpFailsHeldRequestOnStop(t *testing.T) {
	b := newBacklog(logrus.New())
	queue := make(chan *WriteRequest) // never drained
	ctx, cancel := context.WithCancel(context.Background())

	req := newRequest(LedSet, []byte("x"), "")
	req.done = make(chan error, 1)
	_, _ = b.push(req)

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.pump(ctx, queue)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	select {
	case err := <-req.done:
		assert.ErrorIs(t, err, ErrStopped)
	default:
		t.Fatal("held request was not finished")
	}
}

func TestWriteRequest_ClaimAndWithdrawExclusive(t *testing.T) {
	claimed := newRequest(LedSet, nil, "")
	require.True(t, claimed.claim())
	assert.False(t, claimed.withdraw())

	withdrawn := newRequest(LedSet, nil, "")
	require.True(t, withdrawn.withdraw())
	assert.False(t, withdrawn.claim())
}
