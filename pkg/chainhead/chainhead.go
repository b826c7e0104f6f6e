// Package chainhead queries the Ethereum chain head and computes proving
// interval boundaries.
package chainhead

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Source supplies the latest chain head block number.
type Source interface {
	Head(ctx context.Context) (uint64, error)
}

// Client is an RPC-backed head source.
type Client struct {
	eth *ethclient.Client
}

// Dial connects to the RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return &Client{eth: eth}, nil
}

func (c *Client) Head(ctx context.Context) (uint64, error) {
	head, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}
	return head, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

// Boundary returns the greatest interval multiple at or below head. It is
// idempotent: repeated calls with the same head yield the same boundary.
func Boundary(head, interval uint64) uint64 {
	if interval == 0 {
		return head
	}
	return head / interval * interval
}

// BlocksUntilNext returns how many blocks remain until the next interval
// boundary after head.
func BlocksUntilNext(head, interval uint64) uint64 {
	if interval == 0 {
		return 0
	}
	return interval - head%interval
}
