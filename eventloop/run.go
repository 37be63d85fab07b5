package eventloop

import (
	"fmt"
	"time"

	"github.com/netcored/netcore/api"
	"github.com/netcored/netcore/internal/netlog"
	"github.com/sirupsen/logrus"
)

var invalidIDErr = api.ErrInvalidCallbackID

// Run drives the loop until Stop is called, every referenced callback is
// gone, or an uncaught throwable unwinds it. It executes the six-phase
// tick contract on every pass.
func (l *Loop) Run() error {
	if l.running {
		return api.ErrAlreadyRunning
	}
	l.running = true
	l.stopCh = make(chan struct{})
	defer func() {
		l.running = false
		l.reportDeadlockedSuspends()
	}()

	for {
		select {
		case <-l.stopCh:
			return nil
		default:
		}
		if l.refCount == 0 {
			return nil
		}
		if err := l.runTick(); err != nil {
			return err
		}
	}
}

func (l *Loop) runTick() error {
	l.tick++

	// 1. Drain deferred callbacks, then pending microtasks, in FIFO order.
	for len(l.deferred) > 0 {
		task := l.deferred[0]
		l.deferred = l.deferred[1:]
		if err := l.safeCall(task); err != nil {
			return err
		}
	}
	for l.microtasks.Length() > 0 {
		task := l.microtasks.Remove().(func())
		if err := l.safeCall(task); err != nil {
			return err
		}
	}

	// 3. Fire expired timers in ascending (expiresAt, insertion) order.
	// Callbacks armed during this tick are parked in requeue rather than
	// pushed straight back, or the peek loop would see them again within
	// the same pass.
	nowTime := l.now()
	var requeue []*callback
	for {
		cb := l.timers.peek()
		if cb == nil || cb.expiresAt > nowTime {
			break
		}
		l.timers.remove(cb)
		if cb.cancelled || !cb.enabled {
			continue
		}
		if cb.armedTick == l.tick {
			requeue = append(requeue, cb)
			continue
		}
		if cb.kind == KindRepeat {
			// re-entrant scheduling within the same tick is forbidden:
			// marking the reschedule as armed-this-tick parks it until
			// the next pass even when the interval is zero.
			cb.expiresAt = nowTime + cb.interval
			cb.armedTick = l.tick
			l.timers.push(cb)
		}
		err := l.safeInvoke(cb)
		if cb.kind != KindRepeat {
			l.retire(cb)
		}
		if err != nil {
			return err
		}
	}
	for _, cb := range requeue {
		l.timers.push(cb)
	}

	// 4. Fire ready readable/writable fds.
	timeout := l.nextTimeoutMs(nowTime)
	events, err := l.drv.poll(timeout)
	if err != nil {
		if err2 := l.raise(err); err2 != nil {
			return err2
		}
	}
	for _, ev := range events {
		var set map[uintptr]*callback
		if ev.dir == dirRead {
			set = l.readable
		} else {
			set = l.writable
		}
		cb, ok := set[ev.fd]
		if !ok || cb.cancelled || !cb.enabled || cb.armedTick == l.tick {
			continue
		}
		if err := l.safeInvoke(cb); err != nil {
			return err
		}
	}

	// 5. Dispatch queued signals.
	l.sigMu.Lock()
	pending := l.sigBuf
	l.sigBuf = nil
	l.sigMu.Unlock()
	seen := map[int]bool{}
	for _, sig := range pending {
		if seen[sig] {
			continue // coalesce repeats before dispatch
		}
		seen[sig] = true
		cb, ok := l.signals[sig]
		if !ok || cb.cancelled || !cb.enabled || cb.armedTick == l.tick {
			continue
		}
		if err := l.safeInvoke(cb); err != nil {
			return err
		}
	}

	return nil
}

// nextTimeoutMs computes how long poll() may block: zero if microtasks or
// due timers exist, otherwise the time until the next timer, capped so the
// loop remains responsive to newly-armed IO/signals.
func (l *Loop) nextTimeoutMs(now float64) int {
	if len(l.deferred) > 0 || l.microtasks.Length() > 0 {
		return 0
	}
	cb := l.timers.peek()
	if cb == nil {
		if len(l.readable) == 0 && len(l.writable) == 0 {
			return 0
		}
		return 1000
	}
	d := cb.expiresAt - now
	if d <= 0 {
		return 0
	}
	ms := int(d * 1000)
	if ms > 1000 {
		ms = 1000
	}
	return ms
}

func (l *Loop) safeInvoke(cb *callback) error {
	return l.safeCall(func() { l.invoke(cb) })
}

func deadlockLog() *logrus.Entry { return netlog.For("eventloop") }

func (l *Loop) invoke(cb *callback) {
	if !l.trace {
		cb.fn()
		return
	}
	log := netlog.For("eventloop").WithField("callback", string(cb.id))
	log.Debug("callback enter")
	start := time.Now()
	cb.fn()
	log.WithField("elapsed", time.Since(start)).Debug("callback exit")
}

// safeCall runs f, routing a panic through the error handler exactly like
// a returned application error would be. If the handler itself panics/raises, Run unwinds via
// UncaughtThrowable.
func (l *Loop) safeCall(f func()) (outErr error) {
	defer func() {
		if r := recover(); r != nil {
			err := toError(r)
			if handlerErr := l.raise(err); handlerErr != nil {
				outErr = handlerErr
			}
		}
	}()
	f()
	return nil
}

func (l *Loop) raise(err error) error {
	if l.errHandler == nil {
		return err
	}
	var handlerPanic error
	func() {
		defer func() {
			if r := recover(); r != nil {
				handlerPanic = toError(r)
			}
		}()
		l.errHandler(err)
	}()
	if handlerPanic != nil {
		return &UncaughtThrowable{Cause: err, HandlerErr: handlerPanic}
	}
	return nil
}

func toError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}
