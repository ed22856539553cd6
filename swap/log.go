package swap

import "github.com/btcsuite/btclog"

// log is the package-level logger, silent until the host binary wires a
// real backend in via UseLogger.
var log btclog.Logger

func init() {
	UseLogger(btclog.Disabled)
}

// UseLogger sets the package-wide logger used by this package. This
// should be called before any swap activity runs.
func UseLogger(logger btclog.Logger) {
	log = logger
}
