package ble

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// WriteOutcome is the journal record of one processed write request.
type WriteOutcome struct {
	Target     Channel
	Controller string
	Size       int
	Err        error
	Started    time.Time
	Elapsed    time.Duration
}

// Succeeded reports whether the peripheral acknowledged the write.
func (o WriteOutcome) Succeeded() bool {
	return o.Err == nil
}

// journal keeps the most recent write outcomes; older ones are overwritten.
type journal struct {
	buffer      mpmc.RichOverlappedRingBuffer[WriteOutcome]
	drainMu     sync.Mutex
	overwritten atomic.Int64
}

func newJournal(size int) *journal {
	if size <= 0 {
		size = 1
	}
	return &journal{buffer: mpmc.NewOverlappedRingBuffer[WriteOutcome](uint32(size))}
}

func (j *journal) record(o WriteOutcome) {
	overwrites, err := j.buffer.EnqueueM(o)
	if err == nil {
		j.overwritten.Add(int64(overwrites))
	}
}

// drain returns and removes every buffered outcome, oldest first.
func (j *journal) drain() []WriteOutcome {
	j.drainMu.Lock()
	defer j.drainMu.Unlock()

	var out []WriteOutcome
	for !j.buffer.IsEmpty() {
		o, err := j.buffer.Dequeue()
		if err != nil {
			break
		}
		out = append(out, o)
	}
	return out
}

// dropped is the number of outcomes overwritten before anyone drained them.
func (j *journal) dropped() int64 {
	return j.overwritten.Load()
}
