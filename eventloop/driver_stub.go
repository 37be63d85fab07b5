//go:build !unix

// No readiness backend exists off POSIX; graceful reload relies on
// os/exec re-exec and Unix signals throughout supervisor/, so non-POSIX
// targets are out of reach anyway. These stubs keep the package compiling
// for tooling that cross-builds.
package eventloop

import "errors"

func newPreferredDriver() (driver, error) {
	return nil, errUnsupportedPlatform
}

func newSelectDriver() driver {
	return &unsupportedDriver{}
}

type unsupportedDriver struct{}

func (unsupportedDriver) name() string                          { return "unsupported" }
func (unsupportedDriver) add(fd uintptr, dir direction) error   { return errUnsupportedPlatform }
func (unsupportedDriver) remove(fd uintptr, dir direction) bool { return false }
func (unsupportedDriver) poll(timeoutMs int) ([]readyEvent, error) {
	return nil, errUnsupportedPlatform
}
func (unsupportedDriver) close() error { return nil }

var errUnsupportedPlatform = errors.New("netcore: event loop not supported on this platform")
