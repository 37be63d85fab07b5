package eventloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock lets tests control monotonic time deterministically instead of
// racing against the wall clock.
type fakeClock struct{ t float64 }

func (c *fakeClock) now() float64 { return c.t }

func newTestLoop() (*Loop, *fakeClock) {
	l := newWithDriver(newSelectDriver())
	clk := &fakeClock{}
	l.now = clk.now
	return l, clk
}

func TestDelayFiresOnce(t *testing.T) {
	l, clk := newTestLoop()
	calls := 0
	l.Delay(1, func() { calls++; l.Stop() })
	clk.t = 1
	require.NoError(t, l.Run())
	require.Equal(t, 1, calls)
}

func TestRepeatReschedulesAndTieBreaksByInsertionOrder(t *testing.T) {
	l, clk := newTestLoop()
	var order []string
	l.Delay(5, func() { order = append(order, "a") })
	l.Delay(5, func() { order = append(order, "b") })
	clk.t = 5
	count := 0
	l.Repeat(0, func() {
		count++
		if count >= 3 {
			l.Stop()
		}
	})
	require.NoError(t, l.Run())
	require.Equal(t, []string{"a", "b"}, order)
	require.GreaterOrEqual(t, count, 3)
}

func TestCancelIsIdempotentAndInvalidatesID(t *testing.T) {
	l, _ := newTestLoop()
	id := l.Delay(10, func() {})
	l.Cancel(id)
	l.Cancel(id) // no panic, no-op
	require.ErrorIs(t, l.Enable(id), invalidIDErr)
}

func TestDeferRunsBeforeTimersInNextTick(t *testing.T) {
	l, clk := newTestLoop()
	var order []string
	l.Delay(0, func() { order = append(order, "timer") })
	l.Defer(func() { order = append(order, "defer") })
	l.Delay(0.001, func() { l.Stop() })
	clk.t = 1
	require.NoError(t, l.Run())
	require.Equal(t, []string{"defer", "timer"}, order)
}

func TestArmedDuringTickDoesNotFireSameTick(t *testing.T) {
	l, clk := newTestLoop()
	var armedAt, firedAt uint64
	l.Defer(func() {
		armedAt = l.tick
		// a fresh delay of 0 armed inside this tick is already
		// "expired" but must wait for the next tick.
		l.Delay(0, func() {
			firedAt = l.tick
			l.Stop()
		})
	})
	clk.t = 1
	require.NoError(t, l.Run())
	require.Greater(t, firedAt, armedAt)
}

func TestQueueRunsInFIFOOrderBeforeTimers(t *testing.T) {
	l, clk := newTestLoop()
	var order []string
	l.Delay(0, func() { order = append(order, "timer"); l.Stop() })
	l.Queue(func(args ...any) { order = append(order, args[0].(string)) }, "q1")
	l.Queue(func(args ...any) { order = append(order, args[0].(string)) }, "q2")
	clk.t = 1
	require.NoError(t, l.Run())
	require.Equal(t, []string{"q1", "q2", "timer"}, order)
}

func TestDisableThenEnableKeepsTimerAlive(t *testing.T) {
	l, clk := newTestLoop()
	fired := false
	id := l.Delay(1, func() { fired = true; l.Stop() })
	require.NoError(t, l.Disable(id))
	clk.t = 5
	l.Defer(func() {
		require.NoError(t, l.Enable(id))
	})
	require.NoError(t, l.Run())
	require.True(t, fired)
}

func TestRunExitsWhenOnlyUnreferencedCallbacksRemain(t *testing.T) {
	l, clk := newTestLoop()
	id := l.Repeat(10, func() {})
	require.NoError(t, l.Unreference(id))
	clk.t = 1
	require.NoError(t, l.Run()) // returns instead of spinning forever
}

func TestSelectDriverPollWithNoFdsReturnsImmediately(t *testing.T) {
	// poll with no fds and a zero timeout returns at once, without
	// blocking or erroring.
	d := newSelectDriver()
	start := time.Now()
	evs, err := d.poll(0)
	require.NoError(t, err)
	require.Empty(t, evs)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}
