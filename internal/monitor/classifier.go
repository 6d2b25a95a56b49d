package monitor

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// transferObservation is one Transfer log seen for a token.
type transferObservation struct {
	block  uint64
	sender common.Address
}

// TransferClassifier flags mass-distribution patterns: many transfers of the
// same token inside a recent block window, originating from a small set of
// distinct senders. The thresholds are configurable policy, not load-bearing
// correctness values.
type TransferClassifier struct {
	mu          sync.Mutex
	threshold   int
	maxSenders  int
	blockWindow uint64
	perToken    map[common.Address][]transferObservation
}

func NewTransferClassifier(threshold, maxSenders int, blockWindow uint64) *TransferClassifier {
	if threshold <= 0 {
		threshold = 10
	}
	if maxSenders <= 0 {
		maxSenders = 3
	}
	if blockWindow == 0 {
		blockWindow = 20
	}

	return &TransferClassifier{
		threshold:   threshold,
		maxSenders:  maxSenders,
		blockWindow: blockWindow,
		perToken:    make(map[common.Address][]transferObservation),
	}
}

// Observe records one transfer and reports whether the token now matches the
// mass-distribution signature: more than threshold transfers in the window
// from at most maxSenders distinct senders.
func (c *TransferClassifier) Observe(token, sender common.Address, block uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	observations := c.perToken[token]

	// Prune observations that fell out of the block window.
	cutoff := uint64(0)
	if block > c.blockWindow {
		cutoff = block - c.blockWindow
	}
	kept := observations[:0]
	for _, obs := range observations {
		if obs.block >= cutoff {
			kept = append(kept, obs)
		}
	}

	kept = append(kept, transferObservation{block: block, sender: sender})
	c.perToken[token] = kept

	if len(kept) <= c.threshold {
		return false
	}

	senders := make(map[common.Address]struct{}, c.maxSenders+1)
	for _, obs := range kept {
		senders[obs.sender] = struct{}{}
		if len(senders) > c.maxSenders {
			return false
		}
	}

	return true
}

// Forget drops tracking state for a token once it has been reported.
func (c *TransferClassifier) Forget(token common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.perToken, token)
}
