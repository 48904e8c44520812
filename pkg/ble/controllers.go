package ble

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type configuredSet = hashmap.Map[string, struct{}]

// controllerGate tracks per-controller type configuration.
//
// pending keeps the last payload of every controller ever configured, in
// registration order, and never shrinks. configured holds controllers
// acknowledged on the current link; clearing it swaps in a fresh set, so an
// acknowledgment that raced a disconnect lands in the discarded one.
type controllerGate struct {
	logger              *logrus.Logger
	registrationTimeout time.Duration

	mu         sync.Mutex
	pending    *orderedmap.OrderedMap[string, []byte]
	registered chan struct{} // closed and replaced on every registration

	configured atomic.Pointer[configuredSet]
	changedMu  sync.Mutex
	changed    chan struct{} // closed and replaced on every configured-set change
}

type enqueueFunc func(ctx context.Context, req *WriteRequest) error

func newControllerGate(registrationTimeout time.Duration, logger *logrus.Logger) *controllerGate {
	g := &controllerGate{
		logger:              logger,
		registrationTimeout: registrationTimeout,
		pending:             orderedmap.New[string, []byte](),
		registered:          make(chan struct{}),
		changed:             make(chan struct{}),
	}
	g.configured.Store(hashmap.New[string, struct{}]())
	return g
}

// record stores payload as the configuration of id, replacing any earlier one.
func (g *controllerGate) record(id string, payload []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pending.Set(id, append([]byte(nil), payload...))
	close(g.registered)
	g.registered = make(chan struct{})
}

func (g *controllerGate) pendingPayload(id string) ([]byte, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	payload, ok := g.pending.Get(id)
	return payload, ok
}

type pendingConfig struct {
	id      string
	payload []byte
}

// pendingConfigs returns every registered configuration in registration order.
func (g *controllerGate) pendingConfigs() []pendingConfig {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]pendingConfig, 0, g.pending.Len())
	for pair := g.pending.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pendingConfig{id: pair.Key, payload: pair.Value})
	}
	return out
}

// waitPending returns the payload of id, waiting up to the registration
// timeout for a caller to register one.
func (g *controllerGate) waitPending(ctx context.Context, id string) ([]byte, error) {
	timer := time.NewTimer(g.registrationTimeout)
	defer timer.Stop()

	for {
		g.mu.Lock()
		payload, ok := g.pending.Get(id)
		registered := g.registered
		g.mu.Unlock()

		if ok {
			return payload, nil
		}

		select {
		case <-registered:
		case <-timer.C:
			return nil, fmt.Errorf("%w: %q after %s", ErrControllerNotRegistered, id, g.registrationTimeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (g *controllerGate) currentSet() *configuredSet {
	return g.configured.Load()
}

func (g *controllerGate) isConfigured(id string) bool {
	_, ok := g.currentSet().Get(id)
	return ok
}

// markConfigured adds id to set, which is the set that was current when its
// configuration write was issued.
func (g *controllerGate) markConfigured(set *configuredSet, id string) {
	set.Set(id, struct{}{})
	if set == g.currentSet() {
		g.logger.WithField("controller", id).Info("Controller configured")
	}
	g.broadcast()
}

// clear forgets every configured controller. Called on each disconnect.
func (g *controllerGate) clear() {
	g.configured.Store(hashmap.New[string, struct{}]())
	g.broadcast()
}

func (g *controllerGate) broadcast() {
	g.changedMu.Lock()
	defer g.changedMu.Unlock()

	close(g.changed)
	g.changed = make(chan struct{})
}

// waitConfigured blocks until id is configured on the current link.
func (g *controllerGate) waitConfigured(ctx context.Context, id string) error {
	for {
		g.changedMu.Lock()
		changed := g.changed
		g.changedMu.Unlock()

		if g.isConfigured(id) {
			return nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ensureConfigured makes "id is configured" hold before returning: it
// re-enqueues the pending configuration and waits for its acknowledgment.
func (g *controllerGate) ensureConfigured(ctx context.Context, id string, enqueue enqueueFunc) error {
	if g.isConfigured(id) {
		return nil
	}

	payload, err := g.waitPending(ctx, id)
	if err != nil {
		return err
	}

	g.logger.WithField("controller", id).Debug("Controller not configured on this link, sending configuration")
	if err := enqueue(ctx, configRequest(id, payload)); err != nil {
		return err
	}
	return g.waitConfigured(ctx, id)
}

// replay enqueues every pending configuration, oldest registration first.
func (g *controllerGate) replay(ctx context.Context, enqueue enqueueFunc) {
	configs := g.pendingConfigs()
	if len(configs) == 0 {
		return
	}

	g.logger.WithField("controllers", len(configs)).Info("Replaying controller configuration")
	for _, pc := range configs {
		if err := enqueue(ctx, configRequest(pc.id, pc.payload)); err != nil {
			g.logger.WithFields(logrus.Fields{
				"controller": pc.id,
				"error":      err,
			}).Warn("Configuration replay aborted")
			return
		}
	}
}

func configRequest(id string, payload []byte) *WriteRequest {
	return &WriteRequest{
		Target:     CtrlTypeSet,
		Payload:    append([]byte(nil), payload...),
		Controller: id,
	}
}
