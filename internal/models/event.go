package models

import "time"

// EventType classifies a normalized domain event emitted by the monitor.
type EventType string

const (
	EventTokenTransfer    EventType = "token_transfer"
	EventNewAirdrop       EventType = "new_airdrop"
	EventClaimOpened      EventType = "claim_opened"
	EventContractDeployed EventType = "contract_deployed"
)

// ChainEvent is a normalized on-chain observation passed from the monitor to
// the reconciler over a channel. Fire-and-forget relative to the stream: a
// slow consumer drops events rather than blocking the reader.
type ChainEvent struct {
	Type            EventType `json:"type"`
	Blockchain      string    `json:"blockchain"`
	ContractAddress string    `json:"contract_address"`
	From            string    `json:"from,omitempty"`
	To              string    `json:"to,omitempty"`
	Value           string    `json:"value,omitempty"`
	Name            string    `json:"name,omitempty"`
	Symbol          string    `json:"symbol,omitempty"`
	TxHash          string    `json:"tx_hash,omitempty"`
	BlockNumber     uint64    `json:"block_number,omitempty"`
	PossibleAirdrop bool      `json:"possible_airdrop,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}
