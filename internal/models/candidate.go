package models

import "time"

// Candidate is unreconciled airdrop data pulled from one external source.
// Candidates carry no identity guarantees; the reconciler resolves them
// against the canonical store.
type Candidate struct {
	Name            string     `json:"name"`
	Symbol          string     `json:"symbol"`
	ContractAddress string     `json:"contract_address,omitempty"`
	TokenAddress    string     `json:"token_address,omitempty"`
	Blockchain      string     `json:"blockchain"`
	Description     string     `json:"description,omitempty"`
	Website         string     `json:"website,omitempty"`
	StartDate       *time.Time `json:"start_date,omitempty"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	TotalValue      string     `json:"total_value,omitempty"`
	Status          Status     `json:"status"`
	Source          SourceType `json:"source"`
	SourceURL       string     `json:"source_url"`
}

// SyncResult summarizes one reconciliation run. Per-candidate failures are
// collected in Errors and never abort the batch.
type SyncResult struct {
	StartedAt    time.Time `bson:"started_at" json:"started_at"`
	FinishedAt   time.Time `bson:"finished_at" json:"finished_at"`
	NewCount     int       `bson:"new_count" json:"new_count"`
	UpdatedCount int       `bson:"updated_count" json:"updated_count"`
	VerifiedCount int      `bson:"verified_count" json:"verified_count"`
	ExpiredCount int       `bson:"expired_count" json:"expired_count"`
	DeletedCount int64     `bson:"deleted_count" json:"deleted_count"`
	Errors       []string  `bson:"errors,omitempty" json:"errors,omitempty"`
}
