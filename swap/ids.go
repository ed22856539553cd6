package swap

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnd/clock"
)

// Id is the opaque, unique identifier of a swap. It doubles as the primary
// key of the swap's event stream.
type Id [32]byte

// String renders the Id as a lowercase hex string, matching the teacher's
// chainhash.Hash convention.
func (i Id) String() string {
	return hex.EncodeToString(i[:])
}

// IdFromString parses the hex encoding produced by Id.String.
func IdFromString(s string) (Id, error) {
	var id Id
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid swap id %q: %w", s, err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("invalid swap id %q: want %d bytes, got %d",
			s, len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// StreamKey is the event-store key for this swap's stream, matching the
// "swap-" + swap_id convention from the persistence interface (§6).
func (i Id) StreamKey() string {
	return "swap-" + i.String()
}

// Asset identifies one side of a trading pair. Only BTC and LTC are
// supported base/quote assets.
type Asset uint8

const (
	AssetBTC Asset = iota
	AssetLTC
)

// String implements fmt.Stringer.
func (a Asset) String() string {
	switch a {
	case AssetBTC:
		return "BTC"
	case AssetLTC:
		return "LTC"
	default:
		return fmt.Sprintf("Asset(%d)", uint8(a))
	}
}

// PairId is the ordered pair (baseAsset, quoteAsset). baseAsset is always
// the on-chain side of the swap, quoteAsset the off-chain side.
type PairId struct {
	Base  Asset
	Quote Asset
}

// String renders the pair as "BASE/QUOTE".
func (p PairId) String() string {
	return p.Base.String() + "/" + p.Quote.String()
}

// PaymentPreimage is the 32-byte secret that settles both the off-chain
// invoice and the on-chain HTLC.
type PaymentPreimage [32]byte

// Hash returns the PaymentHash committed to by this preimage.
func (p PaymentPreimage) Hash() PaymentHash {
	return PaymentHash(sha256.Sum256(p[:]))
}

// IsZero reports whether the preimage has never been set.
func (p PaymentPreimage) IsZero() bool {
	return p == PaymentPreimage{}
}

// PaymentHash is the SHA-256 digest of a PaymentPreimage, i.e. the
// hash-lock committed to by an HTLC redeem script and an invoice.
type PaymentHash [32]byte

func (h PaymentHash) String() string {
	return hex.EncodeToString(h[:])
}

// FeeRate is expressed in satoshis per virtual byte, the unit the fee
// estimator and §4.2's cap policy both operate in.
type FeeRate uint64

// SatPerVByte is a convenience constructor.
func SatPerVByte(rate uint64) FeeRate {
	return FeeRate(rate)
}

// FeeForVSize returns the absolute fee, in satoshis, for a transaction of
// the given virtual size at this rate.
func (r FeeRate) FeeForVSize(vsize int64) btcutil.Amount {
	return btcutil.Amount(int64(r) * vsize)
}

// BlockHeight is an absolute block height on the relevant chain.
type BlockHeight uint32

// Clock abstracts wall-clock time the way the teacher's clock package does,
// so meta.EffectiveDate can be swapped out for a fixed value in tests.
type Clock = clock.Clock
