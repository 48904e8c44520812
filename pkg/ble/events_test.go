package ble

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_PreservesOrder(t *testing.T) {
	m := newMailbox()
	m.post(linkStateEvent{session: 1})
	m.post(servicesDiscoveredEvent{session: 1})
	m.post(forceDisconnectEvent{session: 1, reason: "x"})

	select {
	case <-m.C():
	default:
		t.Fatal("mailbox should be signaled")
	}

	got := m.drain()
	require.Len(t, got, 3)
	assert.IsType(t, linkStateEvent{}, got[0])
	assert.IsType(t, servicesDiscoveredEvent{}, got[1])
	assert.IsType(t, forceDisconnectEvent{}, got[2])
	assert.Empty(t, m.drain())
}

func TestMailbox_ProducersNeverBlock(t *testing.T) {
	m := newMailbox()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(session uint64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.post(linkStateEvent{session: session})
			}
		}(uint64(i))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producers blocked on an undrained mailbox")
	}
	assert.Len(t, m.drain(), 800)
}
