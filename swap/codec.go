package swap

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
)

// byteOrder is the preferred byte order for the event codec, matching
// channeldb's own convention for its on-disk integer keys.
var byteOrder = binary.BigEndian

// EncodeEvent serialises an event as [u16 BE tag][body]. Only the tag and
// its u16 framing are bit-exact across versions; the body format is free
// to evolve as long as Decode keeps round-tripping old bodies.
func EncodeEvent(w io.Writer, e Event) error {
	if u, ok := e.(UnknownTag); ok {
		if err := binary.Write(w, byteOrder, uint16(u.RawTag)); err != nil {
			return err
		}
		_, err := w.Write(u.Body)
		return err
	}

	if err := binary.Write(w, byteOrder, uint16(e.EventTag())); err != nil {
		return err
	}

	var body bytes.Buffer
	if err := encodeBody(&body, e); err != nil {
		return err
	}
	_, err := w.Write(body.Bytes())
	return err
}

// DecodeEvent reads one [u16 BE tag][body] frame. Unknown tags decode to
// UnknownTag, preserving the raw body bytes unexamined.
func DecodeEvent(r io.Reader) (Event, error) {
	var rawTag uint16
	if err := binary.Read(r, byteOrder, &rawTag); err != nil {
		return nil, err
	}
	tag := Tag(rawTag)

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	return decodeBody(tag, body)
}

// EncodeEventToBytes is a convenience wrapper for callers that want a
// single []byte per event, e.g. an event store appending one record per
// call.
func EncodeEventToBytes(e Event) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeEvent(&buf, e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeEventFromBytes is the inverse of EncodeEventToBytes.
func DecodeEventFromBytes(b []byte) (Event, error) {
	return DecodeEvent(bytes.NewReader(b))
}

func encodeBody(w *bytes.Buffer, e Event) error {
	switch ev := e.(type) {
	case NewLoopOutAdded:
		writeUint32(w, uint32(ev.Height))
		return encodeLoopOut(w, ev.LoopOut)

	case ClaimTxPublished:
		writeString(w, ev.TxId)
		return nil

	case OffChainOfferStarted:
		w.Write(ev.SwapId[:])
		w.WriteByte(byte(ev.Pair.Base))
		w.WriteByte(byte(ev.Pair.Quote))
		writeString(w, ev.Invoice)
		writeUint64(w, uint64(ev.PayParams.MaxPrepayRoutingFee))
		writeUint64(w, uint64(ev.PayParams.MaxSwapRoutingFee))
		writeUint64(w, ev.PayParams.OutgoingChanId)
		return nil

	case OffChainOfferResolved:
		w.Write(ev.Preimage[:])
		return nil

	case NewLoopInAdded:
		writeUint32(w, uint32(ev.Height))
		return encodeLoopIn(w, ev.LoopIn)

	case SwapTxPublished:
		writeString(w, ev.TxHex)
		return nil

	case RefundTxPublished:
		writeString(w, ev.TxId)
		return nil

	case NewTipReceived:
		writeUint32(w, uint32(ev.Height))
		return nil

	case FinishedSuccessfully:
		w.Write(ev.Id[:])
		return nil

	case FinishedByRefund:
		w.Write(ev.Id[:])
		return nil

	case FinishedByError:
		w.Write(ev.Id[:])
		writeString(w, ev.Msg)
		return nil

	case FinishedByTimeout:
		writeString(w, ev.Reason)
		return nil

	default:
		return fmt.Errorf("swap: no encoder registered for event type %T", e)
	}
}

func decodeBody(tag Tag, body []byte) (Event, error) {
	r := bytes.NewReader(body)

	switch tag {
	case TagNewLoopOutAdded:
		h, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		lo, err := decodeLoopOut(r)
		if err != nil {
			return nil, err
		}
		return NewLoopOutAdded{Height: BlockHeight(h), LoopOut: lo}, nil

	case TagClaimTxPublished:
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		return ClaimTxPublished{TxId: s}, nil

	case TagOffChainOfferStarted:
		var id Id
		if _, err := io.ReadFull(r, id[:]); err != nil {
			return nil, err
		}
		base, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		quote, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		invoice, err := readString(r)
		if err != nil {
			return nil, err
		}
		maxPrepay, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		maxSwap, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		outChan, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		return OffChainOfferStarted{
			SwapId:  id,
			Pair:    PairId{Base: Asset(base), Quote: Asset(quote)},
			Invoice: invoice,
			PayParams: PayParams{
				MaxPrepayRoutingFee: btcutil.Amount(maxPrepay),
				MaxSwapRoutingFee:   btcutil.Amount(maxSwap),
				OutgoingChanId:      outChan,
			},
		}, nil

	case TagOffChainOfferResolved:
		var p PaymentPreimage
		if _, err := io.ReadFull(r, p[:]); err != nil {
			return nil, err
		}
		return OffChainOfferResolved{Preimage: p}, nil

	case TagNewLoopInAdded:
		h, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		li, err := decodeLoopIn(r)
		if err != nil {
			return nil, err
		}
		return NewLoopInAdded{Height: BlockHeight(h), LoopIn: li}, nil

	case TagSwapTxPublished:
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		return SwapTxPublished{TxHex: s}, nil

	case TagRefundTxPublished:
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		return RefundTxPublished{TxId: s}, nil

	case TagNewTipReceived:
		h, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		return NewTipReceived{Height: BlockHeight(h)}, nil

	case TagFinishedSuccessfully:
		var id Id
		if _, err := io.ReadFull(r, id[:]); err != nil {
			return nil, err
		}
		return FinishedSuccessfully{Id: id}, nil

	case TagFinishedByRefund:
		var id Id
		if _, err := io.ReadFull(r, id[:]); err != nil {
			return nil, err
		}
		return FinishedByRefund{Id: id}, nil

	case TagFinishedByError:
		var id Id
		if _, err := io.ReadFull(r, id[:]); err != nil {
			return nil, err
		}
		msg, err := readString(r)
		if err != nil {
			return nil, err
		}
		return FinishedByError{Id: id, Msg: msg}, nil

	case TagFinishedByTimeout:
		reason, err := readString(r)
		if err != nil {
			return nil, err
		}
		return FinishedByTimeout{Reason: reason}, nil

	default:
		// Forward-compatibility: preserve the raw body of any tag we
		// don't recognise instead of failing replay.
		return UnknownTag{RawTag: tag, Body: body}, nil
	}
}

func encodeLoopOut(w *bytes.Buffer, lo LoopOut) error {
	w.Write(lo.Id[:])
	w.WriteByte(byte(lo.Pair.Base))
	w.WriteByte(byte(lo.Pair.Quote))
	w.WriteByte(byte(lo.Status))
	writeBytes(w, lo.ClaimKey.Serialize())
	w.Write(lo.Preimage[:])
	writeBytes(w, lo.RedeemScript)
	writeString(w, lo.ClaimAddress)
	writeString(w, lo.Invoice)
	writeString(w, lo.PrepayInvoice)
	writeUint64(w, uint64(lo.OnChainAmount))
	writeUint32(w, uint32(lo.TimeoutBlockHeight))
	writeUint32(w, lo.SweepConfTarget)
	writeUint64(w, uint64(lo.MaxMinerFee))
	writeBool(w, lo.AcceptZeroConf)
	writeString(w, lo.LockupTxHex)
	writeString(w, lo.ClaimTransactionId)
	return nil
}

func decodeLoopOut(r *bytes.Reader) (LoopOut, error) {
	var lo LoopOut
	if _, err := io.ReadFull(r, lo.Id[:]); err != nil {
		return lo, err
	}
	base, err := r.ReadByte()
	if err != nil {
		return lo, err
	}
	quote, err := r.ReadByte()
	if err != nil {
		return lo, err
	}
	lo.Pair = PairId{Base: Asset(base), Quote: Asset(quote)}

	status, err := r.ReadByte()
	if err != nil {
		return lo, err
	}
	lo.Status = LoopOutStatus(status)

	keyBytes, err := readBytes(r)
	if err != nil {
		return lo, err
	}
	if len(keyBytes) > 0 {
		priv, _ := btcec.PrivKeyFromBytes(keyBytes)
		lo.ClaimKey = priv
	}

	if _, err := io.ReadFull(r, lo.Preimage[:]); err != nil {
		return lo, err
	}

	redeem, err := readBytes(r)
	if err != nil {
		return lo, err
	}
	lo.RedeemScript = redeem

	if lo.ClaimAddress, err = readString(r); err != nil {
		return lo, err
	}

	if lo.Invoice, err = readString(r); err != nil {
		return lo, err
	}
	if lo.PrepayInvoice, err = readString(r); err != nil {
		return lo, err
	}
	amt, err := readUint64(r)
	if err != nil {
		return lo, err
	}
	lo.OnChainAmount = btcutil.Amount(amt)

	h, err := readUint32(r)
	if err != nil {
		return lo, err
	}
	lo.TimeoutBlockHeight = BlockHeight(h)

	if lo.SweepConfTarget, err = readUint32(r); err != nil {
		return lo, err
	}

	maxFee, err := readUint64(r)
	if err != nil {
		return lo, err
	}
	lo.MaxMinerFee = btcutil.Amount(maxFee)

	if lo.AcceptZeroConf, err = readBool(r); err != nil {
		return lo, err
	}
	if lo.LockupTxHex, err = readString(r); err != nil {
		return lo, err
	}
	if lo.ClaimTransactionId, err = readString(r); err != nil {
		return lo, err
	}

	return lo, nil
}

func encodeLoopIn(w *bytes.Buffer, li LoopIn) error {
	w.Write(li.Id[:])
	w.WriteByte(byte(li.Pair.Base))
	w.WriteByte(byte(li.Pair.Quote))
	w.WriteByte(byte(li.Status))
	writeBytes(w, li.RefundPrivateKey.Serialize())
	writeBytes(w, li.RedeemScript)
	writeUint64(w, uint64(li.ExpectedAmount))
	writeUint32(w, uint32(li.TimeoutBlockHeight))
	writeUint32(w, li.HtlcConfTarget)
	writeString(w, li.LockupTxHex)
	writeString(w, li.RefundTransactionId)
	return nil
}

func decodeLoopIn(r *bytes.Reader) (LoopIn, error) {
	var li LoopIn
	if _, err := io.ReadFull(r, li.Id[:]); err != nil {
		return li, err
	}
	base, err := r.ReadByte()
	if err != nil {
		return li, err
	}
	quote, err := r.ReadByte()
	if err != nil {
		return li, err
	}
	li.Pair = PairId{Base: Asset(base), Quote: Asset(quote)}

	status, err := r.ReadByte()
	if err != nil {
		return li, err
	}
	li.Status = LoopInStatus(status)

	keyBytes, err := readBytes(r)
	if err != nil {
		return li, err
	}
	if len(keyBytes) > 0 {
		priv, _ := btcec.PrivKeyFromBytes(keyBytes)
		li.RefundPrivateKey = priv
	}

	redeem, err := readBytes(r)
	if err != nil {
		return li, err
	}
	li.RedeemScript = redeem

	amt, err := readUint64(r)
	if err != nil {
		return li, err
	}
	li.ExpectedAmount = btcutil.Amount(amt)

	h, err := readUint32(r)
	if err != nil {
		return li, err
	}
	li.TimeoutBlockHeight = BlockHeight(h)

	if li.HtlcConfTarget, err = readUint32(r); err != nil {
		return li, err
	}
	if li.LockupTxHex, err = readString(r); err != nil {
		return li, err
	}
	if li.RefundTransactionId, err = readString(r); err != nil {
		return li, err
	}

	return li, nil
}

// --- primitive field helpers -------------------------------------------------

func writeUint32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	byteOrder.PutUint32(b[:], v)
	w.Write(b[:])
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return byteOrder.Uint32(b[:]), nil
}

func writeUint64(w *bytes.Buffer, v uint64) {
	var b [8]byte
	byteOrder.PutUint64(b[:], v)
	w.Write(b[:])
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return byteOrder.Uint64(b[:]), nil
}

func writeBool(w *bytes.Buffer, v bool) {
	if v {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func writeBytes(w *bytes.Buffer, b []byte) {
	writeUint32(w, uint32(len(b)))
	w.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writeString(w *bytes.Buffer, s string) {
	writeBytes(w, []byte(s))
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

