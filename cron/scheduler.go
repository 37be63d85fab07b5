package cron

import (
	"sync"
	"time"

	"github.com/netcored/netcore/eventloop"
)

// job pairs a validated Rule with the callback it fires.
type job struct {
	rule *Rule
	fn   func()
}

// Scheduler drives registered rules on top of the worker's event loop:
// it arms one Delay timer per whole-minute boundary,
// and on each boundary computes and arms one Delay timer per due job per
// matching second offset.
type Scheduler struct {
	mu   sync.Mutex
	loop *eventloop.Loop
	jobs []*job
	now  func() time.Time
}

// NewScheduler builds a Scheduler driven by loop. Call Start once the
// owning worker's loop is about to run.
func NewScheduler(loop *eventloop.Loop) *Scheduler {
	return &Scheduler{loop: loop, now: time.Now}
}

// Register validates expr and adds fn to the schedule. A malformed rule
// fails synchronously and leaves the existing schedule untouched.
func (s *Scheduler) Register(expr string, fn func()) error {
	rule, err := Parse(expr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.jobs = append(s.jobs, &job{rule: rule, fn: fn})
	s.mu.Unlock()
	return nil
}

// Start arms every job's still-future offset within the current, already
// partially elapsed minute, then arms the first whole-minute-boundary tick
// for every minute after this one. Without this, a rule registered at
// t=10:00:05 against "30 * * * * *" would only be evaluated starting at
// the 10:01:00 boundary and miss its 10:00:30 firing.
func (s *Scheduler) Start() {
	s.armCurrentMinute()
	s.armNextTick()
}

// armCurrentMinute evaluates the minute now falls in and arms a Delay for
// every matching second offset that hasn't elapsed yet.
func (s *Scheduler) armCurrentMinute() {
	now := s.now()
	start := now.Truncate(time.Minute)
	elapsed := now.Sub(start).Seconds()

	s.mu.Lock()
	jobs := make([]*job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	for _, j := range jobs {
		fn := j.fn
		for _, sec := range j.rule.FireOffsets(start) {
			delay := float64(sec) - elapsed
			if delay > 0 {
				s.loop.Delay(delay, fn)
			}
		}
	}
}

func (s *Scheduler) armNextTick() {
	now := s.now()
	next := now.Truncate(time.Minute).Add(time.Minute)
	s.loop.Delay(next.Sub(now).Seconds(), s.tick)
}

// tick runs once per whole-minute boundary: it evaluates every registered
// job against the just-started minute and arms one Delay per matching
// second offset, coercing an offset of 0 to a tiny positive delay so it
// enters the timer queue rather than firing synchronously within tick
// itself.
func (s *Scheduler) tick() {
	start := s.now().Truncate(time.Minute)

	s.mu.Lock()
	jobs := make([]*job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	for _, j := range jobs {
		offsets := j.rule.FireOffsets(start)
		fn := j.fn
		for _, sec := range offsets {
			delay := float64(sec)
			if delay == 0 {
				delay = 1e-6
			}
			s.loop.Delay(delay, fn)
		}
	}

	s.armNextTick()
}
