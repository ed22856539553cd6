// Package sweep provides the dust-limit guard shared by the swap core's
// claim and refund transaction builders. The teacher's sweep package
// batches many inputs per transaction and picks input sets by yield; this
// daemon only ever sweeps a single HTLC input per claim or refund, so only
// the dust-limit half of that idiom applies here.
package sweep

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcwallet/wallet/txrules"

	"github.com/nloopd/nloop/lnwallet"
)

// RelayFeePerKW is the minimum relay fee rate most backends enforce,
// expressed in the unit txrules.GetDustThreshold expects. It is a
// conservative constant rather than a suspension point: dust-limit
// evaluation is advisory, not safety-critical, for a single fixed-shape
// sweep output.
const RelayFeePerKW = 253

// IsDustOutput reports whether a P2WKH output of amt would be rejected as
// dust by the default relay policy.
func IsDustOutput(amt btcutil.Amount) bool {
	dustLimit := txrules.GetDustThreshold(lnwallet.P2WPKHSize, RelayFeePerKW)
	return amt < dustLimit
}
