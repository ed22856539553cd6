package zpay32

import (
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// maxInvoiceLength is generous for a hold invoice with a handful of tagged
// fields; bech32.DecodeNoLimit itself has no hard cap.
const maxInvoiceLength = 8192

// decodeBech32 decodes invoice using bech32, relaxing bech32's usual 90
// character limit: BOLT-11 invoices routinely exceed it.
func decodeBech32(invoice string) (string, []byte, error) {
	if len(invoice) > maxInvoiceLength {
		return "", nil, fmt.Errorf("invoice too long: %d bytes", len(invoice))
	}

	hrp, data, err := bech32.DecodeNoLimit(invoice)
	if err != nil {
		return "", nil, fmt.Errorf("invalid bech32 string: %w", err)
	}

	return hrp, data, nil
}

// mSatPerUnit gives the millisatoshis represented by one digit of an
// amount under the BOLT-11 multiplier suffixes milli/micro/nano BTC; pico
// BTC, a tenth of a millisatoshi, is handled separately by decodeAmount and
// encodeAmount.
var mSatPerUnit = map[byte]uint64{
	'm': mSatPerBtc / 1e3,
	'u': mSatPerBtc / 1e6,
	'n': mSatPerBtc / 1e9,
}

// decodeAmount decodes the amount portion of an invoice's HRP (everything
// after the network prefix) into millisatoshis.
func decodeAmount(amount string) (MilliSatoshi, error) {
	if len(amount) < 1 {
		return 0, fmt.Errorf("empty amount")
	}

	unit := amount[len(amount)-1]

	// 'p' (pico-BTC, 10^-12) is the only unit whose digit doesn't map
	// to a whole number of millisatoshis; BOLT-11 requires its final
	// digit be 0 so the amount is still millisatoshi-exact.
	if unit == 'p' {
		digits := amount[:len(amount)-1]
		num, err := strconv.ParseUint(digits, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
		}
		if num%10 != 0 {
			return 0, fmt.Errorf("sub-millisatoshi amount %q not supported", amount)
		}
		return MilliSatoshi(num / 10), nil
	}

	if unit < '0' || unit > '9' {
		perUnit, ok := mSatPerUnit[unit]
		if !ok {
			return 0, fmt.Errorf("unknown amount unit %c", unit)
		}
		digits := amount[:len(amount)-1]
		num, err := strconv.ParseUint(digits, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
		}
		return MilliSatoshi(num * perUnit), nil
	}

	// No unit suffix: amount is a whole number of BTC.
	num, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return MilliSatoshi(num * mSatPerBtc), nil
}

// encodeAmount is decodeAmount's inverse. It always uses the 'p' (pico-BTC)
// unit, the only one that can represent an arbitrary millisatoshi amount
// exactly (one pico-BTC digit is 0.1 millisatoshi).
func encodeAmount(amt MilliSatoshi) (string, error) {
	pico := uint64(amt) * 10
	return strconv.FormatUint(pico, 10) + "p", nil
}
