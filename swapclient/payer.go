package swapclient

import (
	"context"

	"github.com/nloopd/nloop/swap"
)

// LightningInvoicePayer adapts a LightningClient's PayInvoice call onto
// swap.InvoicePayer (swap/deps.go), the single suspension point
// swap/exec.go actually calls. It is grounded on the teacher's
// htlcswitch.Switch.SendHTLC: dispatch a payment and block the caller
// until it resolves, not a full switch with link management or
// circuit bookkeeping -- just that one entry point's shape.
type LightningInvoicePayer struct {
	Client LightningClient
}

// PayInvoice implements swap.InvoicePayer.
func (p *LightningInvoicePayer) PayInvoice(invoice string, params swap.PayParams) error {
	maxFee := params.MaxSwapRoutingFee
	if maxFee == 0 {
		maxFee = params.MaxPrepayRoutingFee
	}

	_, err := p.Client.PayInvoice(context.Background(), invoice, maxFee,
		params.OutgoingChanId)
	return err
}

var _ swap.InvoicePayer = (*LightningInvoicePayer)(nil)
