// Package swapclient adapts the counterparty swap-service and lightning
// node surfaces this daemon depends on (§6 EXTERNAL INTERFACES) into
// concrete Go interfaces: SwapClient for the counterparty, LightningClient
// for the local node. swap.Deps.Payer is backed by a LightningClient;
// SwapClient is used by cmd/loopcli and cmd/nloopd, not by the swap core
// itself.
package swapclient

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
)

// PeerAddress is a parsed "<pubkey_hex>@host:port" connection string, the
// same format the teacher's lncli ConnectCommand accepts for lnd peers
// (cmd/lncli/commands.go's connectPeer). cmd/nloopd's swapserver option is
// a plain host:port and is not parsed with ParsePeerAddress.
type PeerAddress struct {
	PubKey *btcec.PublicKey
	Host   string
}

// ParsePeerAddress parses addr as "<pubkey_hex>@host:port".
func ParsePeerAddress(addr string) (*PeerAddress, error) {
	parts := strings.SplitN(addr, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("swapclient: target address expected in " +
			"format: <pubkey_hex>@host:port")
	}

	pubKeyBytes, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("swapclient: invalid pubkey: %w", err)
	}

	pubKey, err := btcec.ParsePubKey(pubKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("swapclient: invalid pubkey: %w", err)
	}

	return &PeerAddress{PubKey: pubKey, Host: parts[1]}, nil
}
