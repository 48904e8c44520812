package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

var phaseColor = color.New(color.FgCyan)

// ProgressPrinter keeps one status line updated with the current phase and
// the elapsed or remaining seconds.
//
// A ProgressPrinter is single-use: Start once, Stop at least once.
type ProgressPrinter struct {
	out       io.Writer
	prefix    string
	phase     atomic.Value // string
	countdown time.Duration
	startTime time.Time

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewProgressPrinter counts up from Start.
func NewProgressPrinter(out io.Writer, prefix, phase string) *ProgressPrinter {
	p := &ProgressPrinter{
		out:    out,
		prefix: prefix,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	p.phase.Store(phase)
	return p
}

// NewCountdownProgressPrinter counts down from d.
func NewCountdownProgressPrinter(out io.Writer, prefix, phase string, d time.Duration) *ProgressPrinter {
	p := NewProgressPrinter(out, prefix, phase)
	p.countdown = d
	return p
}

// Start draws the first line and keeps redrawing it until Stop.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	p.startTime = time.Now()
	fmt.Fprint(p.out, p.line(0))

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				fmt.Fprint(p.out, p.line(time.Since(p.startTime)))
			}
		}
	}()
}

// SetPhase changes the phase shown on the next redraw. Safe for concurrent use.
func (p *ProgressPrinter) SetPhase(phase string) {
	p.phase.Store(phase)
}

// Stop ends the redraw loop and clears the line. Safe to call repeatedly.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		if !p.started.Load() {
			return
		}
		<-p.done
		fmt.Fprint(p.out, clearLineSequence)
	})
}

// line renders the status line after elapsed time.
func (p *ProgressPrinter) line(elapsed time.Duration) string {
	phase := phaseColor.Sprint(p.phase.Load().(string))

	seconds := int(elapsed.Seconds())
	if p.countdown > 0 {
		remaining := p.countdown - elapsed
		if remaining < 0 {
			remaining = 0
		}
		// round to the nearest second
		seconds = int(remaining.Seconds() + 0.5)
	}

	if seconds > 0 {
		return fmt.Sprintf("\r%s (%s %ds)   ", p.prefix, phase, seconds)
	}
	return fmt.Sprintf("\r%s (%s...)   ", p.prefix, phase)
}
