package swap

// Apply folds a single event onto a state, producing the next state. It is
// pure and total: every (state, event) pairing either produces a new state
// or returns the input unchanged (§4.5). Apply never errors -- by the time
// an event reaches the stream, Exec has already validated it.
func Apply(s State, e Event) State {
	switch ev := e.(type) {

	case NewLoopOutAdded:
		if s.Kind != KindHasNotStarted {
			return s
		}
		lo := ev.LoopOut
		return State{Kind: KindOut, BlockHeight: ev.Height, Out: &lo}

	case NewLoopInAdded:
		if s.Kind != KindHasNotStarted {
			return s
		}
		li := ev.LoopIn
		return State{Kind: KindIn, BlockHeight: ev.Height, In: &li}

	case ClaimTxPublished:
		if s.Kind != KindOut {
			return s
		}
		out := *s.Out
		out.ClaimTransactionId = ev.TxId
		s.Out = &out
		return s

	case SwapTxPublished:
		switch s.Kind {
		case KindOut:
			out := *s.Out
			out.LockupTxHex = ev.TxHex
			s.Out = &out
			return s
		case KindIn:
			in := *s.In
			in.LockupTxHex = ev.TxHex
			s.In = &in
			return s
		default:
			return s
		}

	case OffChainOfferResolved:
		if s.Kind != KindOut {
			return s
		}
		out := *s.Out
		out.Preimage = ev.Preimage
		s.Out = &out
		return s

	case RefundTxPublished:
		if s.Kind != KindIn {
			return s
		}
		in := *s.In
		in.RefundTransactionId = ev.TxId
		s.In = &in
		return s

	case NewTipReceived:
		switch s.Kind {
		case KindOut, KindIn:
			s.BlockHeight = ev.Height
			return s
		default:
			return s
		}

	case FinishedSuccessfully:
		if s.Kind != KindOut && s.Kind != KindIn {
			return s
		}
		return State{Kind: KindFinished, Finished: &Outcome{Kind: OutcomeSuccess}}

	case FinishedByError:
		if s.Kind != KindOut && s.Kind != KindIn {
			return s
		}
		return State{Kind: KindFinished, Finished: &Outcome{
			Kind: OutcomeErrored,
			Msg:  ev.Msg,
		}}

	case FinishedByRefund:
		// Per spec.md §9's open question, this only fires if a
		// RefundTxPublished has already been folded into the
		// in-progress loop-in state; otherwise the stream is
		// malformed and Apply leaves the state untouched rather than
		// inventing a refund txid.
		if s.Kind != KindIn || s.In.RefundTransactionId == "" {
			return s
		}
		return State{Kind: KindFinished, Finished: &Outcome{
			Kind:       OutcomeRefunded,
			RefundTxId: s.In.RefundTransactionId,
		}}

	case FinishedByTimeout:
		if s.Kind != KindOut && s.Kind != KindIn {
			return s
		}
		return State{Kind: KindFinished, Finished: &Outcome{
			Kind: OutcomeTimeout,
			Msg:  ev.Reason,
		}}

	case OffChainOfferStarted:
		// Purely informational; carries no state-relevant fact beyond
		// what NewLoopOutAdded already recorded.
		return s

	case UnknownTag:
		// Forward compatibility: an event this build doesn't
		// recognise is ignored rather than rejected.
		return s

	default:
		return s
	}
}

// Fold replays a full event stream from the zero state, the canonical way
// a swap's current state is derived (invariant 6: deterministic given
// identical inputs).
func Fold(events []Event) State {
	s := ZeroState()
	for _, e := range events {
		s = Apply(s, e)
	}
	return s
}
