package eventloop

import (
	"fmt"
	"os"
)

// direction indicates which readiness condition an fd is armed for.
type direction int

const (
	dirRead direction = iota
	dirWrite
)

// readyEvent reports that fd became ready for dir.
type readyEvent struct {
	fd  uintptr
	dir direction
}

// driver abstracts the OS-level readiness backend. Two implementations
// exist: a portable select-based
// fallback and a preferred Unix backend (epoll/kqueue). The loop never
// talks to syscalls directly; it only talks to a driver.
type driver interface {
	// name is the short identifier matched against NETCORED_EVENT_LOOP.
	name() string
	// add arms fd for dir; re-arming replaces any previous registration
	// for the same (fd, dir) pair.
	add(fd uintptr, dir direction) error
	// remove disarms fd for dir; returns whether anything was removed.
	remove(fd uintptr, dir direction) bool
	// poll blocks up to timeoutMs (negative = forever) and returns the
	// fds that became ready. An EINTR-equivalent condition must be
	// coerced into a nil, empty result rather than an error.
	poll(timeoutMs int) ([]readyEvent, error)
	// close releases OS resources held by the driver.
	close() error
}

// newDriver picks a backend: NETCORED_EVENT_LOOP env override, else the platform-preferred backend,
// else the portable select fallback.
func newDriver() (driver, error) {
	if forced := os.Getenv("NETCORED_EVENT_LOOP"); forced != "" {
		return driverByName(forced)
	}
	if d, err := newPreferredDriver(); err == nil {
		return d, nil
	}
	return newSelectDriver(), nil
}

func driverByName(name string) (driver, error) {
	switch name {
	case "select":
		return newSelectDriver(), nil
	case "epoll", "kqueue":
		d, err := newPreferredDriver()
		if err != nil {
			return nil, fmt.Errorf("netcore: driver %q unavailable on this platform: %w", name, err)
		}
		if d.name() != name {
			_ = d.close()
			return nil, fmt.Errorf("netcore: driver %q unavailable on this platform (preferred is %q)", name, d.name())
		}
		return d, nil
	default:
		return nil, fmt.Errorf("netcore: unknown event loop driver %q", name)
	}
}
