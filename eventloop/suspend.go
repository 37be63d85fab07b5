package eventloop

import "runtime/debug"

// Suspend is a cooperative yield handle: a callback obtains one, yields
// control back to the loop, and is resumed exactly once by another
// callback, typically a timer firing on the loop's own goroutine.
type Suspend struct {
	loop     *Loop
	resumeCh chan resumeMsg
	parkCh   chan bool

	// stack is captured at the most recent park point, reported if the
	// loop exits while this suspend is still parked with no resumer left.
	stack []byte
}

type resumeMsg struct {
	val any
	err error
}

// Await blocks the calling goroutine until Resume or Throw delivers a
// result. It must only be called from within a function passed to Spawn.
func (s *Suspend) Await() any {
	s.stack = debug.Stack()
	s.parkCh <- true
	msg := <-s.resumeCh
	if msg.err != nil {
		panic(msg.err)
	}
	return msg.val
}

// Spawn runs fn on a dedicated goroutine but blocks the caller (expected
// to be the loop's own goroutine, from inside a callback) until fn either
// returns or parks on Await. From the outside, fn's execution never
// overlaps with any other callback: the loop is only ever either running a
// plain callback, or running a spawned one up to its next park point.
func (l *Loop) Spawn(fn func(s *Suspend)) *Suspend {
	s := &Suspend{loop: l, resumeCh: make(chan resumeMsg), parkCh: make(chan bool)}
	go func() {
		defer func() {
			_ = recover()
			s.parkCh <- false
		}()
		fn(s)
	}()
	if <-s.parkCh {
		l.parkSuspend(s)
	}
	return s
}

// Resume delivers val to a parked Suspend and blocks until the resumed
// goroutine parks again or finishes.
func (s *Suspend) Resume(val any) {
	s.deliver(resumeMsg{val: val})
}

// Throw delivers err to a parked Suspend, surfacing as a panic inside the
// blocked Await call.
func (s *Suspend) Throw(err error) {
	s.deliver(resumeMsg{err: err})
}

func (s *Suspend) deliver(msg resumeMsg) {
	s.loop.unparkSuspend(s)
	s.resumeCh <- msg
	if <-s.parkCh {
		s.loop.parkSuspend(s)
	}
}

func (l *Loop) parkSuspend(s *Suspend) {
	if l.parked == nil {
		l.parked = make(map[*Suspend]bool)
	}
	l.parked[s] = true
}

func (l *Loop) unparkSuspend(s *Suspend) {
	delete(l.parked, s)
}

// reportDeadlockedSuspends runs as the loop exits: a suspend still parked
// with no live callback left to resume it can never make progress, so it
// is surfaced with the stack of its last park point rather than silently
// leaked.
func (l *Loop) reportDeadlockedSuspends() {
	for s := range l.parked {
		deadlockLog().WithField("stack", string(s.stack)).
			Error("suspended coroutine never resumed; deadlocked at loop exit")
	}
}
