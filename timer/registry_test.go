package timer

import (
	"testing"
	"time"

	"github.com/netcored/netcore/eventloop"
	"github.com/stretchr/testify/require"
)

func TestRegistryAddDelOnLoop(t *testing.T) {
	l, err := eventloop.New()
	require.NoError(t, err)
	r := NewRegistry(l)

	var fired []int
	id1 := r.Add(0, false, func(args ...any) { fired = append(fired, 1); l.Stop() })
	require.NotZero(t, id1)

	require.NoError(t, l.Run())
	require.Equal(t, []int{1}, fired)
}

func TestRegistryDelCancelsPersistent(t *testing.T) {
	l, err := eventloop.New()
	require.NoError(t, err)
	r := NewRegistry(l)

	count := 0
	var id int
	id = r.Add(1*time.Millisecond, true, func(args ...any) {
		count++
		if count == 2 {
			require.True(t, r.Del(id))
			l.Stop()
		}
	})

	require.NoError(t, l.Run())
	require.Equal(t, 2, count)
}

func TestSleepSuspendsAndResumes(t *testing.T) {
	l, err := eventloop.New()
	require.NoError(t, err)
	r := NewRegistry(l)

	var woke bool
	l.Spawn(func(s *eventloop.Suspend) {
		r.Sleep(s, 1*time.Millisecond)
		woke = true
		l.Stop()
	})

	require.NoError(t, l.Run())
	require.True(t, woke)
}
