// Package timer provides a cancelable one-shot scheduler.
//
// Connection code arms timers through the Scheduler interface so that
// tests can drive time explicitly with a Manual scheduler.
package timer

import (
	"sort"
	"sync"
	"time"
)

// Handle is an armed timer.
type Handle interface {
	// Cancel stops the timer. Returns true if the call prevented the
	// callback from running.
	Cancel() bool
}

// Scheduler arms one-shot timers.
type Scheduler interface {
	// After runs fn once d has elapsed, unless the returned handle is
	// canceled first. fn runs on a goroutine owned by the scheduler.
	After(d time.Duration, fn func()) Handle
}

// System returns a Scheduler backed by time.AfterFunc.
func System() Scheduler {
	return systemScheduler{}
}

type systemScheduler struct{}

func (systemScheduler) After(d time.Duration, fn func()) Handle {
	return systemHandle{t: time.AfterFunc(d, fn)}
}

type systemHandle struct {
	t *time.Timer
}

func (h systemHandle) Cancel() bool {
	return h.t.Stop()
}

// Manual is a Scheduler whose clock only moves when Advance is called.
// Callbacks run synchronously on the goroutine calling Advance.
type Manual struct {
	mu      sync.Mutex
	now     time.Duration
	seq     uint64
	pending []*manualTimer
}

type manualTimer struct {
	m        *Manual
	seq      uint64
	deadline time.Duration
	fn       func()
}

// NewManual creates a manual scheduler at time zero.
func NewManual() *Manual {
	return &Manual{}
}

// After arms a timer relative to the manual clock.
func (m *Manual) After(d time.Duration, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTimer{m: m, seq: m.seq, deadline: m.now + d, fn: fn}
	m.pending = append(m.pending, t)
	return t
}

// Advance moves the clock forward by d and fires every timer that came
// due, in deadline order. Returns the number of callbacks run.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	m.now += d
	now := m.now

	var due, keep []*manualTimer
	for _, t := range m.pending {
		if t.deadline <= now {
			due = append(due, t)
		} else {
			keep = append(keep, t)
		}
	}
	m.pending = keep
	m.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		if due[i].deadline == due[j].deadline {
			return due[i].seq < due[j].seq
		}
		return due[i].deadline < due[j].deadline
	})

	for _, t := range due {
		t.fn()
	}
	return len(due)
}

// Pending returns the number of armed timers.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Now returns the elapsed manual time.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (t *manualTimer) Cancel() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	for i, p := range t.m.pending {
		if p == t {
			t.m.pending = append(t.m.pending[:i], t.m.pending[i+1:]...)
			return true
		}
	}
	return false
}
