package probe

import (
	"encoding/hex"
	"strings"
)

// Capability is the result of a typed capability query against deployed
// bytecode. Probing for a function a contract does not implement is a normal
// negative result; a network failure makes the answer indeterminate.
type Capability int

const (
	CapabilityNotSupported Capability = iota
	CapabilitySupported
	CapabilityIndeterminate
)

// 4-byte function selectors probed against deployed bytecode. Presence is
// determined by selector lookup in the code, never by invocation.
const (
	selName        = "06fdde03" // name()
	selSymbol      = "95d89b41" // symbol()
	selDecimals    = "313ce567" // decimals()
	selTotalSupply = "18160ddd" // totalSupply()
	selOwner       = "8da5cb5b" // owner()
	selGetOwner    = "893d20e8" // getOwner()
)

// claimSelectors are claim-style entry points whose presence marks a contract
// as claimable.
var claimSelectors = []string{
	"4e71d92d", // claim()
	"48c54b9d", // claimTokens()
	"5b88349d", // claimAirdrop()
}

// checkSelectors are read-side airdrop bookkeeping functions whose presence
// marks a contract as airdrop-like.
var checkSelectors = []string{
	"9e34070f", // isClaimed(uint256)
	"bf3506c1", // canClaim(address)
}

// hasSelector reports whether the deployed bytecode contains the given
// 4-byte selector. Dispatch tables embed selectors as PUSH4 immediates, so a
// substring scan is a reliable heuristic without an ABI.
func hasSelector(code []byte, selector string) bool {
	return strings.Contains(hex.EncodeToString(code), selector)
}

// hasAnySelector reports whether any selector from the list is present.
func hasAnySelector(code []byte, selectors []string) bool {
	for _, sel := range selectors {
		if hasSelector(code, sel) {
			return true
		}
	}
	return false
}

// scanCapability answers a capability query over fetched bytecode.
// codeErr carries a failed eth_getCode, which makes the answer indeterminate.
func scanCapability(code []byte, codeErr error, selectors []string) Capability {
	if codeErr != nil {
		return CapabilityIndeterminate
	}
	if hasAnySelector(code, selectors) {
		return CapabilitySupported
	}
	return CapabilityNotSupported
}
