package ble

import (
	"sync"

	"github.com/srg/boonled/internal/device"
)

// Messages posted by transport callbacks and the writer into the connection loop.
// session identifies the link the message belongs to; the loop drops messages
// for any link other than the current one.
type (
	linkStateEvent struct {
		session uint64
		status  device.Status
		state   device.LinkState
	}

	servicesDiscoveredEvent struct {
		session uint64
		status  device.Status
	}

	forceDisconnectEvent struct {
		session uint64
		reason  string
	}
)

// mailbox is an unbounded FIFO with a coalescing wake-up signal, so callback
// producers never block on the loop.
type mailbox struct {
	mu     sync.Mutex
	queue  []any
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) post(ev any) {
	m.mu.Lock()
	m.queue = append(m.queue, ev)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// C is signaled after one or more posts.
func (m *mailbox) C() <-chan struct{} {
	return m.notify
}

// drain returns every pending message in post order.
func (m *mailbox) drain() []any {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.queue
	m.queue = nil
	return out
}
