package swapclient

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/nloopd/nloop/swap"
)

// GRPCSwapClient is a SwapClient backed by a grpc.ClientConn. The
// counterparty swap-service's wire protocol is a Non-goal (§6): there is
// no .proto contract in scope to generate a concrete service client from,
// so each method here returns a "not implemented" error without using the
// connection. Real deployments replace this with a generated client
// against the swap-service's actual protobuf definitions; this stub exists
// so cmd/nloopd can link and dial out (insecurely, see DialSwapService)
// using the real grpc stack the teacher itself depends on.
type GRPCSwapClient struct {
	conn *grpc.ClientConn
}

// DialSwapService opens an insecure grpc connection to target
// ("host:port"), matching the teacher's lncli client-dial idiom minus TLS
// (out of scope -- see DESIGN.md's note on cert/tor).
func DialSwapService(target string) (*GRPCSwapClient, error) {
	conn, err := grpc.Dial(target, grpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("swapclient: unable to dial swap service: %w", err)
	}
	return &GRPCSwapClient{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *GRPCSwapClient) Close() error {
	return c.conn.Close()
}

func (c *GRPCSwapClient) LoopOut(ctx context.Context, req LoopOutRequest) (*LoopOutResponse, error) {
	return nil, errNotImplemented("LoopOut")
}

func (c *GRPCSwapClient) LoopIn(ctx context.Context, req LoopInRequest) (*LoopInResponse, error) {
	return nil, errNotImplemented("LoopIn")
}

func (c *GRPCSwapClient) GetQuote(ctx context.Context, req QuoteRequest) (*QuoteResponse, error) {
	return nil, errNotImplemented("GetQuote")
}

func (c *GRPCSwapClient) SubscribeStatus(ctx context.Context, swapId swap.Id) (<-chan StatusUpdate, error) {
	return nil, errNotImplemented("SubscribeStatus")
}

func errNotImplemented(method string) error {
	return fmt.Errorf("swapclient: %s: wire protocol not implemented, see DESIGN.md", method)
}

var _ SwapClient = (*GRPCSwapClient)(nil)
