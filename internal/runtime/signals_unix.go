//go:build !windows

package runtime

import (
	"os"
	"syscall"
)

var rotateSignals = []os.Signal{syscall.SIGHUP}
