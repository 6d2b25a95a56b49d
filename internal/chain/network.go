package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Subscriber is the streaming surface the event monitor needs from one
// blockchain connection. *ethclient.Client satisfies it directly.
type Subscriber interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	Close()
}

// Network binds one blockchain to its provider pool for reads and its WS
// endpoint for streaming. One Network per configured blockchain; no shared
// mutable connection state across networks.
type Network struct {
	Name    string
	ChainID uint64
	WSURL   string
	Pool    *Pool
}

// DialStream opens a fresh WS connection for streaming subscriptions.
// Called on every (re)connect attempt so the monitor controls the
// connection lifecycle.
func (n *Network) DialStream(ctx context.Context) (Subscriber, error) {
	if n.WSURL == "" {
		return nil, fmt.Errorf("network %s has no ws endpoint configured", n.Name)
	}

	client, err := ethclient.DialContext(ctx, n.WSURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s ws endpoint: %w", n.Name, err)
	}
	return client, nil
}

// Close closes the network's provider pool.
func (n *Network) Close() {
	if n.Pool != nil {
		n.Pool.Close()
	}
}
