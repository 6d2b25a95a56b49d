package models

import (
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status describes where an airdrop campaign is in its lifecycle.
// Transitions only move forward (upcoming -> active -> ended) except for an
// explicit re-open driven by an on-chain ClaimOpened signal.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusActive    Status = "active"
	StatusEnded     Status = "ended"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
)

// statusRank orders the forward-only lifecycle states. Paused and cancelled
// sit outside the main progression and are only set by explicit actions.
func statusRank(s Status) int {
	switch s {
	case StatusUpcoming:
		return 0
	case StatusActive:
		return 1
	case StatusEnded:
		return 2
	default:
		return -1
	}
}

// CanAdvanceTo reports whether moving from s to next is a forward transition.
// Re-applying the current status is allowed (idempotent no-op for callers).
func (s Status) CanAdvanceTo(next Status) bool {
	from, to := statusRank(s), statusRank(next)
	if from == -1 || to == -1 {
		// Paused/cancelled involve explicit operator actions, always allowed.
		return true
	}
	return to >= from
}

// VerificationLevel is the trust ratchet for a record. It only moves upward
// through explicit verification evidence; scam is a terminal override set by
// an explicit risk escalation, never by automated probing.
type VerificationLevel string

const (
	LevelUnverified VerificationLevel = "unverified"
	LevelCommunity  VerificationLevel = "community"
	LevelOfficial   VerificationLevel = "official"
	LevelScam       VerificationLevel = "scam"
)

func levelRank(l VerificationLevel) int {
	switch l {
	case LevelUnverified:
		return 0
	case LevelCommunity:
		return 1
	case LevelOfficial:
		return 2
	default:
		return -1
	}
}

// Outranks reports whether l is strictly higher trust than other.
// Scam is terminal and never outranked by the automated path.
func (l VerificationLevel) Outranks(other VerificationLevel) bool {
	if other == LevelScam {
		return false
	}
	if l == LevelScam {
		return false
	}
	return levelRank(l) > levelRank(other)
}

// RiskLevel classifies how dangerous interacting with a campaign may be.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// SourceType identifies where a candidate record came from.
type SourceType string

const (
	SourceKnownDeFi  SourceType = "known-defi"
	SourceCoinGecko  SourceType = "coingecko"
	SourceCommunity  SourceType = "community"
	SourceGitHub     SourceType = "github"
	SourceMonitoring SourceType = "monitoring"
)

// SourceConfidence returns the static 0-100 confidence score for a source
// type. Confidence is derived from the type once at append time and never
// edited or averaged afterwards.
func SourceConfidence(t SourceType) int {
	switch t {
	case SourceKnownDeFi:
		return 90
	case SourceCoinGecko:
		return 80
	case SourceMonitoring:
		return 60
	case SourceCommunity:
		return 40
	case SourceGitHub:
		return 30
	default:
		return 25
	}
}

// TrustedSource reports whether a source type is trusted enough that new
// records from it start at community level with low risk.
func TrustedSource(t SourceType) bool {
	return t == SourceKnownDeFi || t == SourceCoinGecko
}

// Source is one append-only provenance entry on a record. One entry per
// distinct origin URL.
type Source struct {
	Type        SourceType `bson:"type" json:"type"`
	URL         string     `bson:"url" json:"url"`
	LastUpdated time.Time  `bson:"last_updated" json:"last_updated"`
	Confidence  int        `bson:"confidence" json:"confidence"`
}

// ContractInfo carries the latest on-chain probe results merged into a record.
type ContractInfo struct {
	Verified         bool       `bson:"verified" json:"verified"`
	HasClaimFunction bool       `bson:"has_claim_function" json:"has_claim_function"`
	Owner            string     `bson:"owner,omitempty" json:"owner,omitempty"`
	LastActivity     *time.Time `bson:"last_activity,omitempty" json:"last_activity,omitempty"`
}

// RiskAssessment tracks warnings accumulated against a record. Level is a
// pure function of the warning count and is recomputed on every append.
type RiskAssessment struct {
	Level    RiskLevel `bson:"level" json:"level"`
	Factors  []string  `bson:"factors,omitempty" json:"factors,omitempty"`
	Warnings []string  `bson:"warnings,omitempty" json:"warnings,omitempty"`
}

// AddWarning appends a warning and recomputes the risk level from the new
// warning count: >=3 high, ==2 medium, otherwise the level is left alone.
func (r *RiskAssessment) AddWarning(warning string) {
	r.Warnings = append(r.Warnings, warning)
	switch {
	case len(r.Warnings) >= 3:
		r.Level = RiskHigh
	case len(r.Warnings) == 2:
		r.Level = RiskMedium
	}
}

// VerificationEvent is one append-only audit entry for a status or
// verification-level transition.
type VerificationEvent struct {
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Actor     string    `bson:"actor" json:"actor"`
	Action    string    `bson:"action" json:"action"`
	From      string    `bson:"from,omitempty" json:"from,omitempty"`
	To        string    `bson:"to" json:"to"`
}

// TopClaim is one entry in the bounded ranked list of largest claims.
type TopClaim struct {
	WalletAddress string    `bson:"wallet_address" json:"wallet_address"`
	Amount        float64   `bson:"amount" json:"amount"`
	TxHash        string    `bson:"tx_hash" json:"tx_hash"`
	ClaimedAt     time.Time `bson:"claimed_at" json:"claimed_at"`
}

// MaxTopClaims bounds the ranked claim list kept on each record.
const MaxTopClaims = 10

// Analytics holds monotonically increasing engagement counters plus the
// bounded top-claims list.
type Analytics struct {
	Views            int64      `bson:"views" json:"views"`
	Claims           int64      `bson:"claims" json:"claims"`
	SuccessfulClaims int64      `bson:"successful_claims" json:"successful_claims"`
	TopClaims        []TopClaim `bson:"top_claims,omitempty" json:"top_claims,omitempty"`
}

// InsertTopClaim inserts a claim into the ranked list, re-sorts by amount
// descending and truncates to MaxTopClaims.
func (a *Analytics) InsertTopClaim(c TopClaim) {
	a.TopClaims = append(a.TopClaims, c)
	sort.SliceStable(a.TopClaims, func(i, j int) bool {
		return a.TopClaims[i].Amount > a.TopClaims[j].Amount
	})
	if len(a.TopClaims) > MaxTopClaims {
		a.TopClaims = a.TopClaims[:MaxTopClaims]
	}
}

// Metadata carries bookkeeping that is not part of the descriptive surface.
type Metadata struct {
	VerificationHistory []VerificationEvent `bson:"verification_history,omitempty" json:"verification_history,omitempty"`
}

// AirdropRecord is the canonical, deduplicated representation of one airdrop
// campaign. Identity is (contract_address, blockchain) when the contract
// address is known; (name, symbol) is the fallback identity key otherwise.
type AirdropRecord struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name            string             `bson:"name" json:"name"`
	Symbol          string             `bson:"symbol" json:"symbol"`
	Description     string             `bson:"description,omitempty" json:"description,omitempty"`
	Blockchain      string             `bson:"blockchain" json:"blockchain"`
	ContractAddress string             `bson:"contract_address,omitempty" json:"contract_address,omitempty"`
	TokenAddress    string             `bson:"token_address,omitempty" json:"token_address,omitempty"`
	Website         string             `bson:"website,omitempty" json:"website,omitempty"`
	SocialLinks     map[string]string  `bson:"social_links,omitempty" json:"social_links,omitempty"`

	StartDate     *time.Time `bson:"start_date,omitempty" json:"start_date,omitempty"`
	EndDate       *time.Time `bson:"end_date,omitempty" json:"end_date,omitempty"`
	ClaimDeadline *time.Time `bson:"claim_deadline,omitempty" json:"claim_deadline,omitempty"`
	TotalValue    string     `bson:"total_value,omitempty" json:"total_value,omitempty"`

	Status            Status            `bson:"status" json:"status"`
	VerificationLevel VerificationLevel `bson:"verification_level" json:"verification_level"`

	Sources      []Source       `bson:"sources" json:"sources"`
	ContractInfo ContractInfo   `bson:"contract_info" json:"contract_info"`
	Risks        RiskAssessment `bson:"risks" json:"risks"`
	Analytics    Analytics      `bson:"analytics" json:"analytics"`
	Metadata     Metadata       `bson:"metadata" json:"metadata"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// HasSourceURL reports whether a source entry with the given URL already
// exists on the record.
func (r *AirdropRecord) HasSourceURL(url string) bool {
	for _, s := range r.Sources {
		if s.URL == url {
			return true
		}
	}
	return false
}

// Expired reports whether the record's end date or claim deadline is in the
// past relative to now.
func (r *AirdropRecord) Expired(now time.Time) bool {
	if r.EndDate != nil && r.EndDate.Before(now) {
		return true
	}
	if r.ClaimDeadline != nil && r.ClaimDeadline.Before(now) {
		return true
	}
	return false
}

// LegacyAirdropRecord is the reduced-field compatibility view served to
// callers of the pre-verification API. It is a projection of the canonical
// record, never stored or reconciled independently.
type LegacyAirdropRecord struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Symbol          string     `json:"symbol"`
	Description     string     `json:"description,omitempty"`
	Blockchain      string     `json:"blockchain"`
	ContractAddress string     `json:"contractAddress,omitempty"`
	Website         string     `json:"website,omitempty"`
	StartDate       *time.Time `json:"startDate,omitempty"`
	EndDate         *time.Time `json:"endDate,omitempty"`
	TotalValue      string     `json:"totalValue,omitempty"`
	Status          string     `json:"status"`
	Verified        bool       `json:"verified"`
}

// ToLegacy projects the canonical record into the legacy wire shape.
func (r *AirdropRecord) ToLegacy() *LegacyAirdropRecord {
	return &LegacyAirdropRecord{
		ID:              r.ID.Hex(),
		Name:            r.Name,
		Symbol:          r.Symbol,
		Description:     r.Description,
		Blockchain:      r.Blockchain,
		ContractAddress: r.ContractAddress,
		Website:         r.Website,
		StartDate:       r.StartDate,
		EndDate:         r.EndDate,
		TotalValue:      r.TotalValue,
		Status:          string(r.Status),
		Verified:        r.VerificationLevel == LevelCommunity || r.VerificationLevel == LevelOfficial,
	}
}

// NormalizeAddress lowercases a hex address so identity comparisons are
// case-insensitive across sources.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
