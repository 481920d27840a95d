// Package storagestats watches a storage.Storage's write and consolidation
// latencies over a rolling window and turns them into a tuning
// recommendation for Config.ConsolidationsPerTick, surfaced by the
// `gsctl storage advise` subcommand.
package storagestats

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// window is a fixed-capacity ring buffer of float64 samples.
type window struct {
	samples []float64
	next    int
	full    bool
}

func newWindow(capacity int) *window {
	if capacity < 1 {
		capacity = 1
	}
	return &window{samples: make([]float64, capacity)}
}

func (w *window) add(v float64) {
	w.samples[w.next] = v
	w.next = (w.next + 1) % len(w.samples)
	if w.next == 0 {
		w.full = true
	}
}

func (w *window) values() []float64 {
	if w.full {
		return w.samples
	}
	return w.samples[:w.next]
}

func (w *window) mean() float64 {
	vs := w.values()
	if len(vs) == 0 {
		return 0
	}
	return stat.Mean(vs, nil)
}

func (w *window) variance() float64 {
	vs := w.values()
	if len(vs) < 2 {
		return 0
	}
	return stat.Variance(vs, nil)
}

// Advice recommends a new ConsolidationsPerTick value and explains why.
type Advice struct {
	ConsolidationsPerTick int
	Reason                string
}

// Advisor accumulates write and consolidation latency samples for one open
// storage.Storage.
type Advisor struct {
	mu                   sync.Mutex
	writeLatency         *window
	consolidationLatency *window
	current              int
}

// NewAdvisor builds an Advisor tracking the last windowSize samples of each
// metric, starting from the storage engine's current ConsolidationsPerTick.
func NewAdvisor(windowSize, currentConsolidationsPerTick int) *Advisor {
	return &Advisor{
		writeLatency:         newWindow(windowSize),
		consolidationLatency: newWindow(windowSize),
		current:              currentConsolidationsPerTick,
	}
}

// RecordWrite records how long one WriteBlock call took.
func (a *Advisor) RecordWrite(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.writeLatency.add(float64(d.Microseconds()))
}

// RecordConsolidation records how long one Tick consolidation pass took.
func (a *Advisor) RecordConsolidation(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.consolidationLatency.add(float64(d.Microseconds()))
}

// Advise compares recent write and consolidation latency distributions and
// recommends whether ConsolidationsPerTick should change.
//
// Writes trending well above consolidation cost, with consolidation latency
// staying low and steady, means the engine can afford to merge more
// aggressively per tick. High consolidation variance (occasional large
// merges after coalescing many small ones) means the opposite: back off to
// spread the work out.
func (a *Advisor) Advise() Advice {
	a.mu.Lock()
	defer a.mu.Unlock()

	writeMean := a.writeLatency.mean()
	consMean := a.consolidationLatency.mean()
	consVar := a.consolidationLatency.variance()

	switch {
	case consMean == 0:
		return Advice{ConsolidationsPerTick: a.current, Reason: "not enough consolidation samples yet"}
	case consVar > consMean*consMean:
		next := a.current
		if next > 1 {
			next--
		}
		return Advice{ConsolidationsPerTick: next, Reason: "consolidation latency is bursty, spreading merges out"}
	case writeMean > consMean*4:
		return Advice{ConsolidationsPerTick: a.current + 1, Reason: "writes dominate, consolidation has headroom"}
	default:
		return Advice{ConsolidationsPerTick: a.current, Reason: "steady state"}
	}
}
