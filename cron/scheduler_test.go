package cron

import (
	"testing"
	"time"

	"github.com/netcored/netcore/eventloop"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRegisterRejectsInvalidRuleAndKeepsExisting(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)
	s := NewScheduler(loop)

	require.NoError(t, s.Register("* * * * *", func() {}))
	require.Error(t, s.Register("bad rule", func() {}))
	require.Len(t, s.jobs, 1)
}

func TestSchedulerTickFiresDueJobWithinTheMinute(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)

	fixed := time.Date(2026, 8, 1, 9, 15, 0, 0, time.UTC)
	s := NewScheduler(loop)
	s.now = func() time.Time { return fixed }

	fired := make(chan struct{}, 1)
	require.NoError(t, s.Register("15 9 * * *", func() { fired <- struct{}{} }))

	s.tick()

	go loop.Run()
	defer loop.Stop()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cron job to fire")
	}
}

func TestSchedulerStartFiresStillFutureOffsetInCurrentMinute(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)

	fixed := time.Date(2026, 8, 1, 10, 0, 5, 0, time.UTC)
	s := NewScheduler(loop)
	s.now = func() time.Time { return fixed }

	fired := make(chan struct{}, 1)
	require.NoError(t, s.Register("30 * * * * *", func() { fired <- struct{}{} }))

	s.Start()

	go loop.Run()
	defer loop.Stop()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for mid-minute cron job to fire")
	}
}

func TestSchedulerStartSkipsAlreadyElapsedOffsetInCurrentMinute(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)

	fixed := time.Date(2026, 8, 1, 10, 0, 45, 0, time.UTC)
	s := NewScheduler(loop)
	s.now = func() time.Time { return fixed }

	fired := make(chan struct{}, 1)
	require.NoError(t, s.Register("30 * * * * *", func() { fired <- struct{}{} }))

	s.armCurrentMinute()

	go loop.Run()
	defer loop.Stop()

	select {
	case <-fired:
		t.Fatal("job fired for an offset already elapsed in the current minute")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSchedulerTickSkipsNonMatchingJob(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)

	fixed := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	s := NewScheduler(loop)
	s.now = func() time.Time { return fixed }

	fired := make(chan struct{}, 1)
	require.NoError(t, s.Register("15 9 * * *", func() { fired <- struct{}{} }))

	s.tick()

	go loop.Run()
	defer loop.Stop()

	select {
	case <-fired:
		t.Fatal("job fired for a non-matching minute")
	case <-time.After(100 * time.Millisecond):
	}
}
