package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserClaim is one row per (wallet_address, airdrop_id) pair, enforced by a
// unique index. Created on successful claim submission, never deleted.
type UserClaim struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	AirdropID     primitive.ObjectID `bson:"airdrop_id" json:"airdrop_id"`
	WalletAddress string             `bson:"wallet_address" json:"wallet_address"`
	Claimed       bool               `bson:"claimed" json:"claimed"`
	TxHash        string             `bson:"tx_hash,omitempty" json:"tx_hash,omitempty"`
	Amount        float64            `bson:"amount" json:"amount"`
	ClaimedAt     time.Time          `bson:"claimed_at" json:"claimed_at"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
}

// QueryParams filters canonical record listings for the API layer.
type QueryParams struct {
	Blockchain string
	Status     Status
	Level      VerificationLevel
	Search     string
	Limit      int
	Offset     int
}

// StatusCount is one bucket of the stats aggregation.
type StatusCount struct {
	Status Status `bson:"_id" json:"status"`
	Count  int64  `bson:"count" json:"count"`
}

// ChainCount is one per-blockchain bucket of the stats aggregation.
type ChainCount struct {
	Blockchain string `bson:"_id" json:"blockchain"`
	Count      int64  `bson:"count" json:"count"`
}
