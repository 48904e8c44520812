package ble

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// backlog is the single ordering point in front of the write queue. Every
// entry point appends here and one goroutine moves requests into the queue
// in append order, so a full queue never lets a later request overtake an
// earlier one.
type backlog struct {
	logger *logrus.Logger

	mu     sync.Mutex
	items  *orderedmap.OrderedMap[uint64, *WriteRequest]
	seq    uint64
	closed bool
	signal chan struct{} // buffered(1)
}

func newBacklog(logger *logrus.Logger) *backlog {
	return &backlog{
		logger: logger,
		items:  orderedmap.New[uint64, *WriteRequest](),
		signal: make(chan struct{}, 1),
	}
}

// push appends req and returns its ticket for withdraw.
func (b *backlog) push(req *WriteRequest) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrStopped
	}
	b.seq++
	b.items.Set(b.seq, req)
	if depth := b.items.Len(); depth > 1 {
		b.logger.WithFields(logrus.Fields{
			"channel": req.Target,
			"depth":   depth,
		}).Debug("Write queue busy, request held in backlog")
	}

	select {
	case b.signal <- struct{}{}:
	default:
	}
	return b.seq, nil
}

// withdraw drops a request that has not been handed to the queue yet.
// The pump skips withdrawn requests it already popped.
func (b *backlog) withdraw(ticket uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.items.Delete(ticket)
	return ok
}

func (b *backlog) pop() (*WriteRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	oldest := b.items.Oldest()
	if oldest == nil {
		return nil, false
	}
	b.items.Delete(oldest.Key)
	return oldest.Value, true
}

// close rejects further pushes and returns what was still waiting, oldest first.
func (b *backlog) close() []*WriteRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	out := make([]*WriteRequest, 0, b.items.Len())
	for pair := b.items.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	b.items = orderedmap.New[uint64, *WriteRequest]()
	return out
}

// pump moves requests into queue until ctx ends. A request the pump holds
// when ctx ends is finished with ErrStopped.
func (b *backlog) pump(ctx context.Context, queue chan<- *WriteRequest) {
	for {
		req, ok := b.pop()
		if !ok {
			select {
			case <-b.signal:
				continue
			case <-ctx.Done():
				return
			}
		}
		if req.state.Load() == requestWithdrawn {
			continue
		}

		select {
		case queue <- req:
			req.markQueued()
		case <-ctx.Done():
			req.finish(ErrStopped)
			return
		}
	}
}
