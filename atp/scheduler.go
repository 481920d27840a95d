package atp

import (
	"container/heap"
	"time"
)

type eventKind int

const (
	eventRetryTimeout eventKind = iota
	eventXORelease
)

type timerEvent struct {
	at         time.Time
	kind       eventKind
	slot       uint16
	generation uint32
	fn         func()
	index      int
}

type eventQueue []*timerEvent

func (q eventQueue) Len() int            { return len(q) }
func (q eventQueue) Less(i, j int) bool  { return q[i].at.Before(q[j].at) }
func (q eventQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i]; q[i].index = i; q[j].index = j }
func (q *eventQueue) Push(x interface{}) { e := x.(*timerEvent); e.index = len(*q); *q = append(*q, e) }
func (q *eventQueue) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

type genKey struct {
	kind eventKind
	slot uint16
}

// scheduler is a single-goroutine min-heap timer wheel, driven by tick. A
// "generation" tag is assigned every time a timer is (re)armed for a given
// (kind, slot) pair; arming again, or cancelling, invalidates the previous
// tag, so a stale event popped off the heap after its slot was reused or
// its timer cancelled is detected and dropped without needing to search the
// heap for it.
type scheduler struct {
	q       eventQueue
	liveGen map[genKey]uint32
	nextGen uint32
}

func newScheduler() *scheduler {
	s := &scheduler{liveGen: make(map[genKey]uint32)}
	heap.Init(&s.q)
	return s
}

// arm schedules fn to run at now+delay for (kind,slot) and returns the
// generation tag assigned to this timer.
func (s *scheduler) arm(now time.Time, kind eventKind, slot uint16, delay time.Duration, fn func()) uint32 {
	s.nextGen++
	gen := s.nextGen
	s.liveGen[genKey{kind, slot}] = gen
	heap.Push(&s.q, &timerEvent{at: now.Add(delay), kind: kind, slot: slot, generation: gen, fn: fn})
	return gen
}

// cancel invalidates any pending timer for (kind,slot).
func (s *scheduler) cancel(kind eventKind, slot uint16) {
	delete(s.liveGen, genKey{kind, slot})
}

// tick fires every event due at or before now whose generation is still
// live, in time order.
func (s *scheduler) tick(now time.Time) {
	for s.q.Len() > 0 && !s.q[0].at.After(now) {
		e := heap.Pop(&s.q).(*timerEvent)
		if s.liveGen[genKey{e.kind, e.slot}] != e.generation {
			continue
		}
		e.fn()
	}
}
