//go:build linux

// EpollCreate1, EpollCtl, EpollWait, with ADD/MOD/DEL semantics tracking
// read and write interest independently per fd.
package eventloop

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func newPreferredDriver() (driver, error) {
	return newEpollDriver()
}

type epollDriver struct {
	fd        int
	interests map[uintptr]uint32 // fd -> epoll event mask currently registered
}

func newEpollDriver() (driver, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("netcore: epoll_create1: %w", err)
	}
	return &epollDriver{fd: fd, interests: make(map[uintptr]uint32)}, nil
}

func (d *epollDriver) name() string { return "epoll" }

func (d *epollDriver) add(fd uintptr, dir direction) error {
	bit := uint32(unix.EPOLLIN)
	if dir == dirWrite {
		bit = unix.EPOLLOUT
	}
	prev, existed := d.interests[fd]
	mask := prev | bit
	op := unix.EPOLL_CTL_MOD
	if !existed {
		op = unix.EPOLL_CTL_ADD
	}
	ev := unix.EpollEvent{Events: mask, Fd: int32(fd)}
	if err := unix.EpollCtl(d.fd, op, int(fd), &ev); err != nil {
		if err == unix.EMFILE || err == unix.ENFILE {
			return fmt.Errorf("%w: %v", errTooManyOpenFiles, err)
		}
		return fmt.Errorf("netcore: epoll_ctl add: %w", err)
	}
	d.interests[fd] = mask
	return nil
}

func (d *epollDriver) remove(fd uintptr, dir direction) bool {
	prev, ok := d.interests[fd]
	if !ok {
		return false
	}
	bit := uint32(unix.EPOLLIN)
	if dir == dirWrite {
		bit = unix.EPOLLOUT
	}
	if prev&bit == 0 {
		return false
	}
	mask := prev &^ bit
	if mask == 0 {
		delete(d.interests, fd)
		_ = unix.EpollCtl(d.fd, unix.EPOLL_CTL_DEL, int(fd), nil)
		return true
	}
	d.interests[fd] = mask
	ev := unix.EpollEvent{Events: mask, Fd: int32(fd)}
	_ = unix.EpollCtl(d.fd, unix.EPOLL_CTL_MOD, int(fd), &ev)
	return true
}

func (d *epollDriver) poll(timeoutMs int) ([]readyEvent, error) {
	var raw [128]unix.EpollEvent
	n, err := unix.EpollWait(d.fd, raw[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("netcore: epoll_wait: %w", err)
	}
	out := make([]readyEvent, 0, n*2)
	for i := 0; i < n; i++ {
		fd := uintptr(raw[i].Fd)
		ev := raw[i].Events
		if ev&(unix.EPOLLIN|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			out = append(out, readyEvent{fd: fd, dir: dirRead})
		}
		if ev&(unix.EPOLLOUT|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			out = append(out, readyEvent{fd: fd, dir: dirWrite})
		}
	}
	return out, nil
}

func (d *epollDriver) close() error {
	return unix.Close(d.fd)
}
