// Package sim runs GHS nodes on a deterministic discrete-event network. Links have a
// fixed base delay plus seeded jitter and keep per-link FIFO order, so every seed
// replays the same interleaving without real time passing.
package sim

import (
	"container/heap"
	"sync"
	"time"
)

// Time is simulated time as a duration from the start of the run.
type Time time.Duration

// Duration is an alias for time.Duration used in simulation.
type Duration = time.Duration

// String formats the instant as a duration.
func (t Time) String() string {
	return time.Duration(t).String()
}

// event is a scheduled handler.
type event struct {
	when    Time
	seq     uint64 // orders events with the same time
	handler func()
	index   int
}

type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].when == h[j].when {
		return h[i].seq < h[j].seq
	}
	return h[i].when < h[j].when
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x interface{}) {
	e := x.(*event)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler is a discrete event scheduler. Events run in time order, ties in
// scheduling order.
type Scheduler struct {
	mu        sync.Mutex
	now       Time
	events    eventHeap
	nextSeq   uint64
	processed int
}

// NewScheduler creates a scheduler at time 0.
func NewScheduler() *Scheduler {
	s := &Scheduler{events: make(eventHeap, 0)}
	heap.Init(&s.events)
	return s
}

// Now returns the current simulated time.
func (s *Scheduler) Now() Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// In schedules handler after d. The returned function cancels the event.
func (s *Scheduler) In(d Duration, handler func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduleLocked(s.now+Time(d), handler)
}

// At schedules handler at an absolute time. Times in the past run at the next step.
func (s *Scheduler) At(when Time, handler func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if when < s.now {
		when = s.now
	}
	return s.scheduleLocked(when, handler)
}

func (s *Scheduler) scheduleLocked(when Time, handler func()) func() {
	e := &event{when: when, seq: s.nextSeq, handler: handler}
	s.nextSeq++
	heap.Push(&s.events, e)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if e.index >= 0 {
			heap.Remove(&s.events, e.index)
		}
	}
}

// StepOne runs the next event. It reports false when the queue is empty.
func (s *Scheduler) StepOne() bool {
	s.mu.Lock()
	if s.events.Len() == 0 {
		s.mu.Unlock()
		return false
	}
	e := heap.Pop(&s.events).(*event)
	s.now = e.when
	s.processed++
	handler := e.handler
	s.mu.Unlock()

	handler()
	return true
}

// StepWhile runs events while pred holds.
func (s *Scheduler) StepWhile(pred func() bool) int {
	count := 0
	for pred() {
		if !s.StepOne() {
			break
		}
		count++
	}
	return count
}

// Empty reports whether no events are pending.
func (s *Scheduler) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events.Len() == 0
}

// Pending returns the number of pending events.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events.Len()
}

// Processed returns the number of events run so far.
func (s *Scheduler) Processed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed
}
