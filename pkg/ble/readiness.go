package ble

import (
	"context"
	"fmt"
	"sync"
)

type gateState int

const (
	gateNotReady gateState = iota
	gateReady
	gatePoisoned
)

func (s gateState) String() string {
	switch s {
	case gateNotReady:
		return "NotReady"
	case gateReady:
		return "Ready"
	case gatePoisoned:
		return "Poisoned"
	default:
		return fmt.Sprintf("gateState(%d)", int(s))
	}
}

// errGatePoisoned tells a waiter to re-read the current gate and wait again.
type errGatePoisoned struct {
	reason string
}

func (e *errGatePoisoned) Error() string {
	return fmt.Sprintf("readiness invalidated: %s", e.reason)
}

// readinessGate resolves at most once per connection attempt. It leaves
// NotReady exactly once, either to Ready or to Poisoned, and Ready may still
// be poisoned later when the link drops.
type readinessGate struct {
	mu       sync.Mutex
	state    gateState
	reason   string
	resolved chan struct{} // closed when leaving NotReady
	poisoned chan struct{} // closed on poison
}

func newReadinessGate() *readinessGate {
	return &readinessGate{
		resolved: make(chan struct{}),
		poisoned: make(chan struct{}),
	}
}

// resolve moves NotReady to Ready. Reports false if the gate was already resolved or poisoned.
func (g *readinessGate) resolve() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != gateNotReady {
		return false
	}
	g.state = gateReady
	close(g.resolved)
	return true
}

// poison fails the gate for every current and future waiter.
func (g *readinessGate) poison(reason string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == gatePoisoned {
		return false
	}
	if g.state == gateNotReady {
		close(g.resolved)
	}
	g.state = gatePoisoned
	g.reason = reason
	close(g.poisoned)
	return true
}

func (g *readinessGate) isReady() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == gateReady
}

func (g *readinessGate) status() (gateState, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state, g.reason
}

// Poisoned is closed once the gate has been invalidated.
func (g *readinessGate) Poisoned() <-chan struct{} {
	return g.poisoned
}

// wait blocks until the gate leaves NotReady. Returns nil when Ready and
// *errGatePoisoned when invalidated.
func (g *readinessGate) wait(ctx context.Context) error {
	select {
	case <-g.resolved:
	case <-ctx.Done():
		return ctx.Err()
	}

	state, reason := g.status()
	if state == gateReady {
		return nil
	}
	return &errGatePoisoned{reason: reason}
}
