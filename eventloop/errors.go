package eventloop

import (
	"errors"
	"fmt"

	"github.com/netcored/netcore/api"
)

// errTooManyOpenFiles is translated by each driver into a descriptive,
// actionable error rather than surfacing an opaque native errno.
var errTooManyOpenFiles = api.ErrTooManyOpenFiles

// UncaughtThrowable unwinds Run() when a user error handler itself
// raises.
type UncaughtThrowable struct {
	Cause      error
	HandlerErr error
}

func (u *UncaughtThrowable) Error() string {
	return fmt.Sprintf("netcore: uncaught throwable: handler error %v while handling %v", u.HandlerErr, u.Cause)
}

func (u *UncaughtThrowable) Unwrap() error { return u.Cause }

func isInvalidID(err error) bool { return errors.Is(err, api.ErrInvalidCallbackID) }
