//go:build darwin || freebsd || netbsd || openbsd || dragonfly

// Unix-preferred backend for BSD-family kernels: the same
// ADD/MOD/DEL-by-fd shape as driver_epoll_linux.go but expressed with
// kevent changelists.
package eventloop

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func newPreferredDriver() (driver, error) {
	return newKqueueDriver()
}

type kqueueDriver struct {
	fd      int
	readFds map[uintptr]bool
	wrFds   map[uintptr]bool
}

func newKqueueDriver() (driver, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("netcore: kqueue: %w", err)
	}
	return &kqueueDriver{fd: fd, readFds: map[uintptr]bool{}, wrFds: map[uintptr]bool{}}, nil
}

func (d *kqueueDriver) name() string { return "kqueue" }

func (d *kqueueDriver) filterFor(dir direction) int16 {
	if dir == dirWrite {
		return unix.EVFILT_WRITE
	}
	return unix.EVFILT_READ
}

func (d *kqueueDriver) add(fd uintptr, dir direction) error {
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: d.filterFor(dir),
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}
	if _, err := unix.Kevent(d.fd, []unix.Kevent_t{ev}, nil, nil); err != nil {
		if err == unix.EMFILE || err == unix.ENFILE {
			return fmt.Errorf("%w: %v", errTooManyOpenFiles, err)
		}
		return fmt.Errorf("netcore: kevent add: %w", err)
	}
	if dir == dirWrite {
		d.wrFds[fd] = true
	} else {
		d.readFds[fd] = true
	}
	return nil
}

func (d *kqueueDriver) remove(fd uintptr, dir direction) bool {
	set := d.readFds
	if dir == dirWrite {
		set = d.wrFds
	}
	if !set[fd] {
		return false
	}
	delete(set, fd)
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: d.filterFor(dir),
		Flags:  unix.EV_DELETE,
	}
	_, _ = unix.Kevent(d.fd, []unix.Kevent_t{ev}, nil, nil)
	return true
}

func (d *kqueueDriver) poll(timeoutMs int) ([]readyEvent, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		ts = &t
	}
	raw := make([]unix.Kevent_t, 128)
	n, err := unix.Kevent(d.fd, nil, raw, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("netcore: kevent wait: %w", err)
	}
	out := make([]readyEvent, 0, n)
	for i := 0; i < n; i++ {
		dir := dirRead
		if raw[i].Filter == unix.EVFILT_WRITE {
			dir = dirWrite
		}
		out = append(out, readyEvent{fd: uintptr(raw[i].Ident), dir: dir})
	}
	return out, nil
}

func (d *kqueueDriver) close() error {
	return unix.Close(d.fd)
}
