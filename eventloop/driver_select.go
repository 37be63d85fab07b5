//go:build unix

package eventloop

import (
	"fmt"
	"sort"
	"time"

	"golang.org/x/sys/unix"
)

// selectDriver is the cross-platform readiness-polling fallback. It must
// translate EINTR into "no events this tick" rather than raising, and it
// works on any platform golang.org/x/sys exposes a select(2)-shaped
// syscall for.
type selectDriver struct {
	readFds map[uintptr]bool
	wrFds   map[uintptr]bool
}

func newSelectDriver() driver {
	return &selectDriver{readFds: map[uintptr]bool{}, wrFds: map[uintptr]bool{}}
}

func (d *selectDriver) name() string { return "select" }

func (d *selectDriver) add(fd uintptr, dir direction) error {
	set := d.readFds
	if dir == dirWrite {
		set = d.wrFds
	}
	if len(d.readFds)+len(d.wrFds) >= unix.FD_SETSIZE {
		return fmt.Errorf("%w: select fd_set exhausted", errTooManyOpenFiles)
	}
	set[fd] = true
	return nil
}

func (d *selectDriver) remove(fd uintptr, dir direction) bool {
	set := d.readFds
	if dir == dirWrite {
		set = d.wrFds
	}
	if !set[fd] {
		return false
	}
	delete(set, fd)
	return true
}

func (d *selectDriver) poll(timeoutMs int) ([]readyEvent, error) {
	if len(d.readFds) == 0 && len(d.wrFds) == 0 {
		// nothing to select on; still honor the timeout so a timer-only
		// loop doesn't spin.
		if timeoutMs > 0 {
			time.Sleep(time.Duration(timeoutMs) * time.Millisecond)
		}
		return nil, nil
	}
	var rset, wset unix.FdSet
	maxFd := 0
	for fd := range d.readFds {
		fdSetAdd(&rset, int(fd))
		if int(fd) > maxFd {
			maxFd = int(fd)
		}
	}
	for fd := range d.wrFds {
		fdSetAdd(&wset, int(fd))
		if int(fd) > maxFd {
			maxFd = int(fd)
		}
	}

	var tv *unix.Timeval
	if timeoutMs >= 0 {
		t := unix.NsecToTimeval(int64(timeoutMs) * 1e6)
		tv = &t
	}

	n, err := unix.Select(maxFd+1, &rset, &wset, nil, tv)
	if err != nil {
		if err == unix.EINTR {
			// "unable to select" due to EINTR: coerce to "no events".
			return nil, nil
		}
		if err == unix.EMFILE || err == unix.ENFILE {
			return nil, fmt.Errorf("%w: %v", errTooManyOpenFiles, err)
		}
		return nil, fmt.Errorf("netcore: select: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	out := make([]readyEvent, 0, n)
	fds := make([]int, 0, len(d.readFds)+len(d.wrFds))
	for fd := range d.readFds {
		fds = append(fds, int(fd))
	}
	for fd := range d.wrFds {
		fds = append(fds, int(fd))
	}
	sort.Ints(fds)
	seen := map[int]bool{}
	for _, fd := range fds {
		if seen[fd] {
			continue
		}
		seen[fd] = true
		if d.readFds[uintptr(fd)] && fdSetIsSet(&rset, fd) {
			out = append(out, readyEvent{fd: uintptr(fd), dir: dirRead})
		}
		if d.wrFds[uintptr(fd)] && fdSetIsSet(&wset, fd) {
			out = append(out, readyEvent{fd: uintptr(fd), dir: dirWrite})
		}
	}
	return out, nil
}

func (d *selectDriver) close() error { return nil }

func fdSetAdd(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdSetIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}
