package probe

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"time"

	"dropradar/internal/chain"
	"dropradar/internal/metrics"
	"dropradar/pkg/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Result is the outcome of probing one contract address. Each sub-check is
// best-effort: an unreachable chain degrades fields to their unknown default
// instead of failing the whole verify.
type Result struct {
	Address           string     `json:"address"`
	Blockchain        string     `json:"blockchain"`
	IsValid           bool       `json:"is_valid"`
	IsToken           bool       `json:"is_token"`
	Name              string     `json:"name,omitempty"`
	Symbol            string     `json:"symbol,omitempty"`
	Decimals          uint8      `json:"decimals"`
	TotalSupply       string     `json:"total_supply,omitempty"`
	IsAirdropContract bool       `json:"is_airdrop_contract"`
	HasClaimFunction  bool       `json:"has_claim_function"`
	ClaimCapability   Capability `json:"-"`
	Owner             string     `json:"owner,omitempty"`
	LastActivity      *time.Time `json:"last_activity,omitempty"`
	Verified          bool       `json:"verified"`
}

// activityWindow is the liveness horizon: a contract with claim functions and
// activity inside this window (or unknown activity) counts as active.
const activityWindow = 30 * 24 * time.Hour

// activityLookbackBlocks bounds the log scan used to find the most recent
// contract activity.
const activityLookbackBlocks = 5000

// Prober verifies contract state across the configured blockchains.
// Stateless: every Verify call is a fresh read of chain state.
type Prober struct {
	readers  map[string]chain.Reader
	verifier SourceVerifier // optional, nil leaves Verified false
	logger   *logger.Logger

	batchSize   int
	batchPause  time.Duration
	callTimeout time.Duration
}

// New creates a prober over one reader per blockchain name.
func New(readers map[string]chain.Reader, verifier SourceVerifier, log *logger.Logger, batchSize int, batchPause, callTimeout time.Duration) *Prober {
	if batchSize <= 0 {
		batchSize = 5
	}
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}

	return &Prober{
		readers:     readers,
		verifier:    verifier,
		logger:      log,
		batchSize:   batchSize,
		batchPause:  batchPause,
		callTimeout: callTimeout,
	}
}

// Verify probes a contract address on one blockchain. The returned error is
// reserved for unusable input (unknown blockchain); chain failures degrade
// individual fields instead.
func (p *Prober) Verify(ctx context.Context, address, blockchain string) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.ProbeDuration.WithLabelValues(blockchain).Observe(time.Since(start).Seconds())
	}()

	reader, ok := p.readers[blockchain]
	if !ok {
		return nil, fmt.Errorf("no chain client configured for blockchain %q", blockchain)
	}

	result := &Result{
		Address:    address,
		Blockchain: blockchain,
		Decimals:   18,
	}

	if !common.IsHexAddress(address) {
		metrics.ProbeCallsTotal.WithLabelValues(blockchain, "invalid_address").Inc()
		return result, nil
	}
	addr := common.HexToAddress(address)

	code, codeErr := reader.CodeAt(ctx, addr, nil)
	if codeErr != nil {
		// ChainUnreachable: every sub-check stays at its unknown default.
		p.logger.Warn("getCode failed for %s on %s: %v", address, blockchain, codeErr)
		result.ClaimCapability = CapabilityIndeterminate
		metrics.ProbeCallsTotal.WithLabelValues(blockchain, "unreachable").Inc()
		return result, nil
	}

	if len(code) == 0 {
		metrics.ProbeCallsTotal.WithLabelValues(blockchain, "no_code").Inc()
		return result, nil
	}
	result.IsValid = true

	result.ClaimCapability = scanCapability(code, nil, claimSelectors)
	result.HasClaimFunction = result.ClaimCapability == CapabilitySupported
	result.IsAirdropContract = scanCapability(code, nil, checkSelectors) == CapabilitySupported

	p.probeToken(ctx, reader, addr, result)
	p.probeOwner(ctx, reader, addr, result)
	p.probeActivity(ctx, reader, addr, result)

	if p.verifier != nil {
		verified, err := p.verifier.IsVerified(ctx, address, blockchain)
		if err != nil {
			p.logger.Debug("explorer lookup failed for %s: %v", address, err)
		} else {
			result.Verified = verified
		}
	}

	metrics.ProbeCallsTotal.WithLabelValues(blockchain, "ok").Inc()
	return result, nil
}

// probeToken attempts name/symbol reads; both succeeding marks the contract
// as a token. Decimals and total supply are opportunistic.
func (p *Prober) probeToken(ctx context.Context, reader chain.Reader, addr common.Address, result *Result) {
	name, nameErr := p.callString(ctx, reader, addr, selName)
	symbol, symbolErr := p.callString(ctx, reader, addr, selSymbol)

	if nameErr == nil && symbolErr == nil && name != "" && symbol != "" {
		result.IsToken = true
		result.Name = name
		result.Symbol = symbol
	}

	if raw, err := p.call(ctx, reader, addr, selDecimals); err == nil && len(raw) >= 32 {
		result.Decimals = uint8(new(big.Int).SetBytes(raw[:32]).Uint64())
	}
	if raw, err := p.call(ctx, reader, addr, selTotalSupply); err == nil && len(raw) >= 32 {
		result.TotalSupply = new(big.Int).SetBytes(raw[:32]).String()
	}
}

// probeOwner tries owner(), falling back to getOwner(). Absence of both
// yields no owner, not an error.
func (p *Prober) probeOwner(ctx context.Context, reader chain.Reader, addr common.Address, result *Result) {
	for _, sel := range []string{selOwner, selGetOwner} {
		raw, err := p.call(ctx, reader, addr, sel)
		if err != nil || len(raw) < 32 {
			continue
		}
		owner := common.BytesToAddress(raw[12:32])
		if owner != (common.Address{}) {
			result.Owner = owner.Hex()
			return
		}
	}
}

// probeActivity looks for the most recent log emitted by the contract within
// a bounded block window. No logs or a failed scan leaves activity unknown.
func (p *Prober) probeActivity(ctx context.Context, reader chain.Reader, addr common.Address, result *Result) {
	head, err := reader.HeaderByNumber(ctx, nil)
	if err != nil {
		return
	}

	latest := head.Number.Uint64()
	from := uint64(0)
	if latest > activityLookbackBlocks {
		from = latest - activityLookbackBlocks
	}

	logs, err := reader.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(latest),
		Addresses: []common.Address{addr},
	})
	if err != nil || len(logs) == 0 {
		return
	}

	var newest uint64
	for _, entry := range logs {
		if entry.BlockNumber > newest {
			newest = entry.BlockNumber
		}
	}

	header, err := reader.HeaderByNumber(ctx, new(big.Int).SetUint64(newest))
	if err != nil {
		return
	}
	activity := time.Unix(int64(header.Time), 0)
	result.LastActivity = &activity
}

// call performs a read-only eth_call with just a 4-byte selector.
func (p *Prober) call(ctx context.Context, reader chain.Reader, addr common.Address, selector string) ([]byte, error) {
	data, err := hex.DecodeString(selector)
	if err != nil {
		return nil, fmt.Errorf("bad selector %s: %w", selector, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	return reader.CallContract(callCtx, ethereum.CallMsg{To: &addr, Data: data}, nil)
}

// callString performs an eth_call and decodes an ABI string return value.
func (p *Prober) callString(ctx context.Context, reader chain.Reader, addr common.Address, selector string) (string, error) {
	raw, err := p.call(ctx, reader, addr, selector)
	if err != nil {
		return "", err
	}
	return decodeABIString(raw), nil
}

// decodeABIString handles both dynamic ABI strings and legacy bytes32
// returns (some early tokens return fixed-width names).
func decodeABIString(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}

	// The offset and length words are untrusted return data; compare against
	// the remaining size instead of adding, so oversized words cannot wrap.
	if size := uint64(len(raw)); size >= 64 {
		offset := new(big.Int).SetBytes(raw[:32]).Uint64()
		if offset <= size-32 {
			length := new(big.Int).SetBytes(raw[offset : offset+32]).Uint64()
			start := offset + 32
			if length <= size-start {
				return string(raw[start : start+length])
			}
		}
	}

	// bytes32 fallback
	if len(raw) == 32 {
		return string(bytes.TrimRight(raw, "\x00"))
	}

	return ""
}

// IsAirdropActive composes the liveness heuristic: valid contract, claim
// entry point present, and activity within the window or unknown.
func IsAirdropActive(result *Result, now time.Time) bool {
	if result == nil || !result.IsValid || !result.HasClaimFunction {
		return false
	}
	if result.LastActivity == nil {
		return true
	}
	return now.Sub(*result.LastActivity) <= activityWindow
}

// VerifyBatch probes N addresses on one blockchain in fixed-size batches
// with an inter-batch pause to respect third-party rate limits. Failures are
// isolated per address.
func (p *Prober) VerifyBatch(ctx context.Context, blockchain string, addresses []string) map[string]*Result {
	results := make(map[string]*Result, len(addresses))
	var mu sync.Mutex

	for i := 0; i < len(addresses); i += p.batchSize {
		end := i + p.batchSize
		if end > len(addresses) {
			end = len(addresses)
		}

		var wg sync.WaitGroup
		for _, address := range addresses[i:end] {
			wg.Add(1)
			go func(address string) {
				defer wg.Done()

				result, err := p.Verify(ctx, address, blockchain)
				if err != nil {
					p.logger.Warn("batch verify failed for %s on %s: %v", address, blockchain, err)
					return
				}

				mu.Lock()
				results[address] = result
				mu.Unlock()
			}(address)
		}
		wg.Wait()

		if end < len(addresses) && p.batchPause > 0 {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(p.batchPause):
			}
		}
	}

	return results
}
