//go:build unix && !linux && !darwin && !freebsd && !netbsd && !openbsd && !dragonfly

package eventloop

import "errors"

// Unix platforms without epoll or kqueue fall back to the select driver.
func newPreferredDriver() (driver, error) {
	return nil, errors.New("netcore: no preferred event loop driver on this platform")
}
