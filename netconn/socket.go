package netconn

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// ListenSocket creates a non-blocking listening socket for transport
// ("tcp", "udp", "unix") bound to addr, applying SO_REUSEPORT when
// requested.
func ListenSocket(transport, addr string, reusePort bool) (uintptr, error) {
	switch transport {
	case "unix":
		return listenUnix(addr)
	case "udp":
		return listenInet(unix.SOCK_DGRAM, addr, reusePort)
	default:
		return listenInet(unix.SOCK_STREAM, addr, reusePort)
	}
}

func listenInet(sockType int, addr string, reusePort bool) (uintptr, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("netcore: bad listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("netcore: bad port %q: %w", portStr, err)
	}

	fd, err := unix.Socket(unix.AF_INET, sockType, 0)
	if err != nil {
		return 0, fmt.Errorf("netcore: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return 0, err
	}
	if reusePort {
		if err := setReusePort(fd); err != nil {
			unix.Close(fd)
			return 0, err
		}
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return 0, err
	}

	var ip [4]byte
	if host != "" && host != "0.0.0.0" {
		parsed := net.ParseIP(host)
		if parsed == nil {
			unix.Close(fd)
			return 0, fmt.Errorf("netcore: bad listen host %q", host)
		}
		copy(ip[:], parsed.To4())
	}
	sa := &unix.SockaddrInet4{Port: port, Addr: ip}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return 0, fmt.Errorf("netcore: bind %s: %w", addr, err)
	}
	if sockType == unix.SOCK_STREAM {
		if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
			unix.Close(fd)
			return 0, fmt.Errorf("netcore: listen %s: %w", addr, err)
		}
	}
	return uintptr(fd), nil
}

func listenUnix(path string) (uintptr, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return 0, fmt.Errorf("netcore: socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return 0, err
	}
	sa := &unix.SockaddrUnix{Name: path}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return 0, fmt.Errorf("netcore: bind %s: %w", path, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return 0, fmt.Errorf("netcore: listen %s: %w", path, err)
	}
	return uintptr(fd), nil
}

// AcceptNonBlocking performs a non-blocking accept; on transient EAGAIN it
// returns (0, "", unix.EAGAIN) so the caller can treat a thundering-herd
// wakeup as a no-op.
func AcceptNonBlocking(listenFD uintptr) (uintptr, string, error) {
	nfd, sa, err := unix.Accept(int(listenFD))
	if err != nil {
		return 0, "", err
	}
	if err := unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return 0, "", err
	}
	_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	_ = unix.SetsockoptInt(nfd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
	return uintptr(nfd), sockaddrString(sa), nil
}

func sockaddrString(sa unix.Sockaddr) string {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IP(v.Addr[:])
		return net.JoinHostPort(ip.String(), strconv.Itoa(v.Port))
	case *unix.SockaddrUnix:
		return v.Name
	default:
		return ""
	}
}

// DialNonBlocking starts a non-blocking connect to host:port and returns
// the socket immediately; completion is detected via writability.
func DialNonBlocking(host string, port int) (uintptr, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return 0, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return 0, err
	}
	ip, err := resolveIPv4(host)
	if err != nil {
		unix.Close(fd)
		return 0, err
	}
	sa := &unix.SockaddrInet4{Port: port, Addr: ip}
	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return 0, err
	}
	return uintptr(fd), nil
}

// checkSocketError reads SO_ERROR after a non-blocking connect's
// writability fires, distinguishing a completed connect from a refused
// one.
func checkSocketError(fd uintptr) error {
	errno, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

// resolveIPv4 resolves host (literal dotted-quad or DNS name) to the
// 4-byte form unix.SockaddrInet4 wants, used by both DialNonBlocking and
// the lazy UDP connect in udp.go.
func resolveIPv4(host string) ([4]byte, error) {
	var ip [4]byte
	parsed := net.ParseIP(host)
	if parsed == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return ip, fmt.Errorf("netcore: lookup %s: %w", host, err)
		}
		parsed = ips[0]
	}
	copy(ip[:], parsed.To4())
	return ip, nil
}

// ParseHostPort splits "host:port" defensively for proxy/dial use.
func ParseHostPort(hostport string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
