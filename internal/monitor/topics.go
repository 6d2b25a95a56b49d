package monitor

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Topic hashes the log filter subscribes to. Transfer is the standard ERC-20
// signature; NewAirdrop/ClaimOpened are the custom events emitted by
// cooperative airdrop contracts.
var (
	TopicTransfer    = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
	TopicNewAirdrop  = crypto.Keccak256Hash([]byte("NewAirdrop(address,string,string)"))
	TopicClaimOpened = crypto.Keccak256Hash([]byte("ClaimOpened(address)"))
)

// zeroAddress marks mint-style transfers.
var zeroAddress = common.Address{}

// deployKeywords are scanned (lowercased) in freshly deployed bytecode to
// flag airdrop-looking contracts. Solidity metadata and revert strings keep
// these readable in the code section often enough to be a useful signal.
var deployKeywords = [][]byte{
	[]byte("airdrop"),
	[]byte("claim"),
	[]byte("distribute"),
	[]byte("reward"),
	[]byte("bonus"),
}

// deploySelectors are claim-style 4-byte selectors checked in deployed code,
// the stronger half of the deploy heuristic.
var deploySelectors = [][]byte{
	{0x4e, 0x71, 0xd9, 0x2d}, // claim()
	{0x48, 0xc5, 0x4b, 0x9d}, // claimTokens()
	{0x5b, 0x88, 0x34, 0x9d}, // claimAirdrop()
}

// looksLikeAirdropCode reports whether deployed bytecode matches the keyword
// or selector heuristic.
func looksLikeAirdropCode(code []byte) bool {
	if len(code) == 0 {
		return false
	}

	for _, sel := range deploySelectors {
		if bytes.Contains(code, sel) {
			return true
		}
	}

	lowered := bytes.ToLower(code)
	for _, keyword := range deployKeywords {
		if bytes.Contains(lowered, keyword) {
			return true
		}
	}

	return false
}
