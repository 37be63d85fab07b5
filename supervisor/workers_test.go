package supervisor

import (
	"testing"

	"github.com/netcored/netcore/api"
	"github.com/netcored/netcore/internal/config"
	"github.com/stretchr/testify/require"
)

func TestAllWorkerPIDsSkipsVacantSlots(t *testing.T) {
	s := newTestSupervisor(config.ServerSpec{Name: "a"}, config.ServerSpec{Name: "b"})
	s.slots["a"] = []*workerSlot{{index: 0, pid: 111}, {index: 1, pid: 0}}
	s.slots["b"] = []*workerSlot{{index: 0, pid: 222}}

	pids := s.allWorkerPIDs()
	require.ElementsMatch(t, []int{111, 222}, pids)
}

func TestAllSlotsVacant(t *testing.T) {
	s := newTestSupervisor(config.ServerSpec{Name: "a"})
	s.slots["a"] = []*workerSlot{{index: 0, pid: 111}}
	require.False(t, s.allSlotsVacant())

	s.slots["a"][0].pid = 0
	require.True(t, s.allSlotsVacant())
}

func TestHandleExitDuringShutdownDoesNotRefork(t *testing.T) {
	s := newTestSupervisor(config.ServerSpec{Name: "a"})
	s.slots["a"] = []*workerSlot{{index: 0, pid: 111}}
	s.status = api.SupervisorShutdown

	s.handleExit(exitEvent{server: "a", index: 0, pid: 111})

	require.Equal(t, 0, s.slots["a"][0].pid)
	require.True(t, s.allSlotsVacant())
}
