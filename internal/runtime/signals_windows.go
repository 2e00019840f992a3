package runtime

import "os"

// Windows has no SIGHUP; log files rotate by size only.
var rotateSignals []os.Signal
