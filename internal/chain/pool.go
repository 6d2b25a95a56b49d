package chain

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"dropradar/internal/metrics"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Reader is the read-only chain surface consumed by the contract probe and
// the reconciler's liveness checks. Pool implements it with failover.
type Reader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
}

// Pool manages the RPC providers of one blockchain with automatic failover.
// Weighted round-robin selection among healthy providers.
type Pool struct {
	providers []*Provider
	mu        sync.RWMutex
	current   int // Current provider index for round-robin
}

// NewPool creates a pool from a list of providers for one blockchain.
func NewPool(providers []*Provider) *Pool {
	// Sort providers by weight (descending) for optimal selection
	sorted := make([]*Provider, len(providers))
	copy(sorted, providers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Weight > sorted[j].Weight
	})

	return &Pool{
		providers: sorted,
		current:   0,
	}
}

// healthyProviders returns all currently healthy providers.
func (p *Pool) healthyProviders() []*Provider {
	healthy := make([]*Provider, 0, len(p.providers))
	for _, provider := range p.providers {
		if provider.IsHealthy() {
			healthy = append(healthy, provider)
		}
	}
	return healthy
}

// SelectProvider returns the next healthy provider using weighted round-robin.
// Falls back to the first provider if all are unhealthy.
func (p *Pool) SelectProvider() (*Provider, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	healthy := p.healthyProviders()
	if len(healthy) > 0 {
		selected := healthy[p.current%len(healthy)]
		p.current++
		return selected, nil
	}

	if len(p.providers) > 0 {
		return p.providers[0], fmt.Errorf("all providers unhealthy, using %s as fallback", p.providers[0].Name)
	}

	return nil, fmt.Errorf("no providers available")
}

// failover runs fn against providers in round-robin order until one succeeds.
// Each provider may be retried once; context cancellation stops the loop.
func failover[T any](p *Pool, ctx context.Context, method string, fn func(ctx context.Context, provider *Provider) (T, error)) (T, error) {
	var zero T
	var lastErr error
	attemptedProviders := make(map[string]bool)

	maxAttempts := len(p.providers) * 2 // Allow retry of each provider once
	for attempt := 0; attempt < maxAttempts; attempt++ {
		provider, err := p.SelectProvider()
		if err != nil {
			return zero, fmt.Errorf("no healthy providers available: %w", err)
		}

		if attemptedProviders[provider.Name] && attempt < len(p.providers) {
			// First pass - skip already attempted
			continue
		}

		providerCtx, cancel := context.WithTimeout(ctx, provider.Timeout)

		start := time.Now()
		result, err := fn(providerCtx, provider)
		duration := time.Since(start)
		cancel()

		metrics.RPCRequestDuration.WithLabelValues(provider.Name, method).Observe(duration.Seconds())
		metrics.RPCRequestsTotal.WithLabelValues(provider.Name, method).Inc()

		if err == nil {
			provider.RecordSuccess()
			return result, nil
		}

		provider.RecordFailure(err)
		lastErr = fmt.Errorf("provider %s failed: %w", provider.Name, err)
		attemptedProviders[provider.Name] = true

		if ctx.Err() != nil {
			return zero, fmt.Errorf("context cancelled: %w", ctx.Err())
		}
	}

	return zero, fmt.Errorf("all providers failed, last error: %w", lastErr)
}

// CodeAt executes eth_getCode with automatic failover.
func (p *Pool) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return failover(p, ctx, "CodeAt", func(ctx context.Context, provider *Provider) ([]byte, error) {
		return provider.GetClient().CodeAt(ctx, account, blockNumber)
	})
}

// CallContract executes eth_call with automatic failover.
func (p *Pool) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return failover(p, ctx, "CallContract", func(ctx context.Context, provider *Provider) ([]byte, error) {
		return provider.GetClient().CallContract(ctx, msg, blockNumber)
	})
}

// BalanceAt executes eth_getBalance with automatic failover.
func (p *Pool) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return failover(p, ctx, "BalanceAt", func(ctx context.Context, provider *Provider) (*big.Int, error) {
		return provider.GetClient().BalanceAt(ctx, account, blockNumber)
	})
}

// HeaderByNumber executes eth_getHeaderByNumber with automatic failover.
func (p *Pool) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return failover(p, ctx, "HeaderByNumber", func(ctx context.Context, provider *Provider) (*types.Header, error) {
		return provider.GetClient().HeaderByNumber(ctx, number)
	})
}

// BlockByNumber executes eth_getBlockByNumber with automatic failover.
func (p *Pool) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	return failover(p, ctx, "BlockByNumber", func(ctx context.Context, provider *Provider) (*types.Block, error) {
		return provider.GetClient().BlockByNumber(ctx, number)
	})
}

// TransactionReceipt executes eth_getTransactionReceipt with automatic failover.
func (p *Pool) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return failover(p, ctx, "TransactionReceipt", func(ctx context.Context, provider *Provider) (*types.Receipt, error) {
		return provider.GetClient().TransactionReceipt(ctx, txHash)
	})
}

// clampLogRange narrows a block-range query to the most recent blocks a
// provider's max range allows.
func clampLogRange(query ethereum.FilterQuery, maxRange uint64) ethereum.FilterQuery {
	if query.FromBlock == nil || query.ToBlock == nil || maxRange == 0 {
		return query
	}

	from := query.FromBlock.Uint64()
	to := query.ToBlock.Uint64()
	if to < from || to-from+1 <= maxRange {
		return query
	}

	query.FromBlock = new(big.Int).SetUint64(to - maxRange + 1)
	return query
}

// FilterLogs executes eth_getLogs with automatic failover. A query wider
// than a provider's max range is clamped to the most recent blocks that
// provider accepts rather than rejected, so a range policy never counts as
// a provider failure.
func (p *Pool) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return failover(p, ctx, "FilterLogs", func(ctx context.Context, provider *Provider) ([]types.Log, error) {
		return provider.GetClient().FilterLogs(ctx, clampLogRange(query, provider.MaxRange))
	})
}

// Close closes all provider connections
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, provider := range p.providers {
		provider.Close()
	}
}
