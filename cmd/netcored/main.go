// Command netcored starts and controls the supervisor and its worker
// pool: start, stop, restart, reload, status, connections.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(250)
	}
}
