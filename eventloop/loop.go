package eventloop

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/eapache/queue"
)

// Loop is the single-threaded cooperative scheduler. All methods except
// Run/Stop/the signal relay goroutine are only ever called from the
// loop's own goroutine by convention, so there is no internal locking on
// the hot path; the one exception is the OS-signal relay, which must hand
// off across goroutines because Go delivers signals on a dedicated
// runtime goroutine.
type Loop struct {
	drv driver

	timers timerHeap
	byID   map[ID]*callback

	readable map[uintptr]*callback
	writable map[uintptr]*callback
	signals  map[int]*callback

	deferred   []func()
	microtasks *queue.Queue

	running    bool
	stopCh     chan struct{}
	tick       uint64
	refCount   int
	errHandler func(error)

	seq uint64

	sigCh  chan os.Signal
	sigMu  sync.Mutex
	sigBuf []int

	now   func() float64
	trace bool

	parked map[*Suspend]bool
}

// New constructs a Loop using the driver selected by newDriver (env
// override, platform-preferred, or select fallback).
func New() (*Loop, error) {
	drv, err := newDriver()
	if err != nil {
		return nil, err
	}
	l := newWithDriver(drv)
	l.trace = os.Getenv("NETCORED_TRACE_CALLBACKS") == "1"
	return l, nil
}

func newWithDriver(drv driver) *Loop {
	return &Loop{
		drv:        drv,
		microtasks: queue.New(),
		byID:       make(map[ID]*callback),
		readable:   make(map[uintptr]*callback),
		writable:   make(map[uintptr]*callback),
		signals:    make(map[int]*callback),
		stopCh:     make(chan struct{}),
		now:        monotonicSeconds,
	}
}

func monotonicSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// DriverName reports which backend this loop ended up using, mostly for
// logging at worker startup.
func (l *Loop) DriverName() string { return l.drv.name() }

func (l *Loop) register(cb *callback) {
	cb.seq = l.seq
	l.seq++
	l.byID[cb.id] = cb
	if cb.referenced {
		l.refCount++
	}
}

// Delay runs f once after d seconds (d >= 0).
func (l *Loop) Delay(d float64, f func()) ID {
	if d < 0 {
		d = 0
	}
	cb := &callback{
		id:         nextID("delay"),
		kind:       KindDelay,
		fn:         f,
		enabled:    true,
		referenced: true,
		expiresAt:  l.now() + d,
		armedTick:  l.tick,
	}
	l.register(cb)
	l.timers.push(cb)
	return cb.id
}

// Repeat runs f every i seconds until cancelled (i >= 0).
func (l *Loop) Repeat(i float64, f func()) ID {
	if i < 0 {
		i = 0
	}
	cb := &callback{
		id:         nextID("repeat"),
		kind:       KindRepeat,
		fn:         f,
		enabled:    true,
		referenced: true,
		interval:   i,
		expiresAt:  l.now() + i,
		armedTick:  l.tick,
	}
	l.register(cb)
	l.timers.push(cb)
	return cb.id
}

// Defer enqueues f to run before any other event in the next tick.
func (l *Loop) Defer(f func()) ID {
	cb := &callback{id: nextID("defer"), kind: KindDefer, fn: f, enabled: true, referenced: true}
	l.register(cb)
	l.deferred = append(l.deferred, func() { l.runMicrotaskCallback(cb) })
	return cb.id
}

// Queue enqueues a microtask that runs in FIFO order at the next safe
// point, after any pending Defer callbacks but before timers/IO/signals
// of the same tick.
func (l *Loop) Queue(f func(args ...any), args ...any) {
	l.microtasks.Add(func() { f(args...) })
}

func (l *Loop) runMicrotaskCallback(cb *callback) {
	if cb.cancelled || !cb.enabled {
		return
	}
	defer l.retire(cb)
	l.invoke(cb)
}

// retire drops a one-shot callback after it has run so it no longer
// holds the loop open or occupies its id.
func (l *Loop) retire(cb *callback) {
	if cb.cancelled {
		return
	}
	cb.cancelled = true
	cb.enabled = false
	delete(l.byID, cb.id)
	if cb.referenced {
		cb.referenced = false
		l.refCount--
	}
}

// OnReadable arms f to run when fd becomes readable. Re-arming the same fd
// replaces the prior callback.
func (l *Loop) OnReadable(fd uintptr, f func()) ID {
	return l.onIO(l.readable, fd, dirRead, f)
}

// OnWritable arms f to run when fd becomes writable.
func (l *Loop) OnWritable(fd uintptr, f func()) ID {
	return l.onIO(l.writable, fd, dirWrite, f)
}

func (l *Loop) onIO(set map[uintptr]*callback, fd uintptr, dir direction, f func()) ID {
	if old, ok := set[fd]; ok {
		delete(l.byID, old.id)
		if old.referenced {
			l.refCount--
		}
		l.drv.remove(fd, dir)
	}
	cb := &callback{
		id: nextID("io"), kind: kindForDir(dir), fn: f, fd: fd,
		enabled: true, referenced: true, armedTick: l.tick,
	}
	set[fd] = cb
	l.register(cb)
	if err := l.drv.add(fd, dir); err != nil {
		l.raise(err)
	}
	return cb.id
}

func kindForDir(dir direction) CallbackKind {
	if dir == dirWrite {
		return KindWritable
	}
	return KindReadable
}

// OffReadable disarms fd's readable callback, reporting whether one was
// present.
func (l *Loop) OffReadable(fd uintptr) bool { return l.offIO(l.readable, fd, dirRead) }

// OffWritable disarms fd's writable callback.
func (l *Loop) OffWritable(fd uintptr) bool { return l.offIO(l.writable, fd, dirWrite) }

func (l *Loop) offIO(set map[uintptr]*callback, fd uintptr, dir direction) bool {
	cb, ok := set[fd]
	if !ok {
		return false
	}
	delete(set, fd)
	delete(l.byID, cb.id)
	if cb.referenced {
		l.refCount--
	}
	l.drv.remove(fd, dir)
	return true
}

// OnSignal registers f to run when sig is delivered. Dispatch is deferred
// to the next tick boundary; repeated deliveries before dispatch coalesce.
func (l *Loop) OnSignal(sig int, f func()) ID {
	if old, ok := l.signals[sig]; ok {
		delete(l.byID, old.id)
		if old.referenced {
			l.refCount--
		}
	}
	cb := &callback{id: nextID("sig"), kind: KindSignal, fn: f, sig: sig, enabled: true, referenced: true, armedTick: l.tick}
	l.signals[sig] = cb
	l.register(cb)
	l.ensureSignalRelay()
	signal.Notify(l.sigCh, osSignal(sig))
	return cb.id
}

// OffSignal unregisters sig's callback. signal.Stop detaches the relay
// channel from every signal at once, so the surviving registrations are
// re-armed afterwards.
func (l *Loop) OffSignal(sig int) bool {
	cb, ok := l.signals[sig]
	if !ok {
		return false
	}
	delete(l.signals, sig)
	delete(l.byID, cb.id)
	if cb.referenced {
		l.refCount--
	}
	signal.Stop(l.sigCh)
	for remaining := range l.signals {
		signal.Notify(l.sigCh, osSignal(remaining))
	}
	return true
}

func (l *Loop) ensureSignalRelay() {
	if l.sigCh != nil {
		return
	}
	l.sigCh = make(chan os.Signal, 32)
	go func() {
		for s := range l.sigCh {
			n := signalNumber(s)
			l.sigMu.Lock()
			l.sigBuf = append(l.sigBuf, n)
			l.sigMu.Unlock()
		}
	}()
}

// Enable re-activates a disabled callback.
func (l *Loop) Enable(id ID) error { return l.setEnabled(id, true) }

// Disable deactivates a callback without cancelling it.
func (l *Loop) Disable(id ID) error { return l.setEnabled(id, false) }

func (l *Loop) setEnabled(id ID, enabled bool) error {
	cb, ok := l.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", invalidIDErr, id)
	}
	if cb.cancelled {
		return fmt.Errorf("%w: %s", invalidIDErr, id)
	}
	if enabled && !cb.enabled {
		cb.armedTick = l.tick
		switch cb.kind {
		case KindDelay, KindRepeat:
			// an expired timer is dropped from the heap while disabled;
			// put it back so it fires on the next tick.
			if cb.heapIndex < 0 {
				if now := l.now(); cb.expiresAt < now {
					cb.expiresAt = now
				}
				l.timers.push(cb)
			}
		}
	}
	cb.enabled = enabled
	return nil
}

// Cancel permanently removes id; idempotent, never fails.
func (l *Loop) Cancel(id ID) {
	cb, ok := l.byID[id]
	if !ok {
		return
	}
	cb.cancelled = true
	cb.enabled = false
	delete(l.byID, id)
	if cb.referenced {
		l.refCount--
		cb.referenced = false
	}
	switch cb.kind {
	case KindDelay, KindRepeat:
		l.timers.remove(cb)
	case KindReadable:
		if l.readable[cb.fd] == cb {
			delete(l.readable, cb.fd)
			l.drv.remove(cb.fd, dirRead)
		}
	case KindWritable:
		if l.writable[cb.fd] == cb {
			delete(l.writable, cb.fd)
			l.drv.remove(cb.fd, dirWrite)
		}
	case KindSignal:
		if l.signals[cb.sig] == cb {
			delete(l.signals, cb.sig)
		}
	}
}

// Reference and Unreference govern whether id contributes to the loop's
// "keep running" condition.
func (l *Loop) Reference(id ID) error { return l.setReferenced(id, true) }

func (l *Loop) Unreference(id ID) error { return l.setReferenced(id, false) }

func (l *Loop) setReferenced(id ID, ref bool) error {
	cb, ok := l.byID[id]
	if !ok || cb.cancelled {
		return fmt.Errorf("%w: %s", invalidIDErr, id)
	}
	if cb.referenced != ref {
		if ref {
			l.refCount++
		} else {
			l.refCount--
		}
		cb.referenced = ref
	}
	return nil
}

// SetErrorHandler installs the handler user callback errors route through.
func (l *Loop) SetErrorHandler(f func(error)) { l.errHandler = f }

// GetErrorHandler returns the currently installed error handler, if any.
func (l *Loop) GetErrorHandler() func(error) { return l.errHandler }

// IsRunning reports whether Run is currently looping.
func (l *Loop) IsRunning() bool { return l.running }

// Stop requests the loop to exit after completing its current tick;
// calling it more than once is a no-op.
func (l *Loop) Stop() {
	if !l.running {
		return
	}
	select {
	case <-l.stopCh:
	default:
		close(l.stopCh)
	}
}
