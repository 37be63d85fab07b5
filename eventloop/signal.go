package eventloop

import (
	"os"
	"syscall"
)

func osSignal(sig int) os.Signal {
	return syscall.Signal(sig)
}

func signalNumber(s os.Signal) int {
	if sig, ok := s.(syscall.Signal); ok {
		return int(sig)
	}
	return -1
}
