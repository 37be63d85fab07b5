// Package timer implements the process-wide Timer API: a thin
// integer-id wrapper over eventloop.Loop, plus a signal-driven
// fallback usable before any Loop exists (the master process).
package timer

import (
	"sync"
	"time"

	"github.com/netcored/netcore/eventloop"
)

// Registry is the integer-id Timer API. Tasks scheduled for the same
// whole-second bucket (alarm mode) or the same tick (loop mode) fire in
// insertion order.
type Registry struct {
	mu   sync.Mutex
	loop *eventloop.Loop

	nextID int
	byInt  map[int]eventloop.ID

	alarm *alarmClock // non-nil when running in pre-loop (SIGALRM) mode
}

// NewRegistry wraps an already-constructed event loop.
func NewRegistry(loop *eventloop.Loop) *Registry {
	return &Registry{loop: loop, byInt: make(map[int]eventloop.ID)}
}

// NewAlarmRegistry builds a registry usable before any Loop exists,
// driven by a 1-second SIGALRM tick. The supervisor does not use it: the
// master's stopTimeout/reload deadlines run on time.AfterFunc.
func NewAlarmRegistry() *Registry {
	r := &Registry{byInt: make(map[int]eventloop.ID)}
	r.alarm = newAlarmClock()
	return r
}

// Add schedules callback to run every interval seconds (or once, if
// persistent is false), passing args through, and returns an integer id.
func (r *Registry) Add(interval time.Duration, persistent bool, callback func(args ...any), args ...any) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	fn := func() { callback(args...) }

	if r.alarm != nil {
		r.alarm.schedule(id, interval, persistent, fn)
		return id
	}

	var loopID eventloop.ID
	if persistent {
		loopID = r.loop.Repeat(interval.Seconds(), fn)
	} else {
		loopID = r.loop.Delay(interval.Seconds(), fn)
	}
	r.byInt[id] = loopID
	return id
}

// Del cancels id; a no-op (returning false) if id is unknown.
func (r *Registry) Del(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.alarm != nil {
		return r.alarm.cancel(id)
	}
	loopID, ok := r.byInt[id]
	if !ok {
		return false
	}
	delete(r.byInt, id)
	r.loop.Cancel(loopID)
	return true
}

// DelAll cancels every timer currently registered.
func (r *Registry) DelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.alarm != nil {
		r.alarm.cancelAll()
		return
	}
	for id, loopID := range r.byInt {
		r.loop.Cancel(loopID)
		delete(r.byInt, id)
	}
}

// Close stops the SIGALRM ticker of an alarm-mode registry; a no-op in
// loop mode.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.alarm != nil {
		r.alarm.stop()
		r.alarm = nil
	}
}

// Sleep suspends the goroutine spawned via Loop.Spawn until d elapses. s
// must be the Suspend handle the running coroutine obtained from Spawn;
// Go has no ambient per-goroutine suspension context, so callers thread
// the handle through explicitly.
func (r *Registry) Sleep(s *eventloop.Suspend, d time.Duration) {
	r.loop.Delay(d.Seconds(), func() { s.Resume(nil) })
	s.Await()
}
