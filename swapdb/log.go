package swapdb

import "github.com/btcsuite/btclog"

var log btclog.Logger

func init() {
	UseLogger(btclog.Disabled)
}

// UseLogger sets the package-wide logger used by this package.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// logClosure lazily formats an expensive-to-compute log argument -- most
// often a spew.Sdump of a decoded event -- so the cost is only paid when
// the configured log level would actually print it, the teacher's own
// idiom for debug-logging full transaction dumps.
type logClosure func() string

func (c logClosure) String() string {
	return c()
}

func newLogClosure(c func() string) logClosure {
	return logClosure(c)
}
