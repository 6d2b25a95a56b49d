package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"dropradar/internal/config"
	"dropradar/internal/models"
	"dropradar/internal/probe"
	"dropradar/internal/sources"
	"dropradar/internal/store"
	"dropradar/pkg/logger"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeStore is an in-memory store.Store good enough for reconciler
// semantics: identity lookups, narrow updates and the retention sweep.
type fakeStore struct {
	mu      sync.Mutex
	records map[primitive.ObjectID]*models.AirdropRecord
	claims  map[string]*models.UserClaim
	syncs   []*models.SyncResult
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: make(map[primitive.ObjectID]*models.AirdropRecord),
		claims:  make(map[string]*models.UserClaim),
	}
}

func (f *fakeStore) Insert(ctx context.Context, record *models.AirdropRecord) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if record.ContractAddress != "" {
		for _, existing := range f.records {
			if existing.ContractAddress == record.ContractAddress && existing.Blockchain == record.Blockchain {
				return primitive.NilObjectID, store.ErrDuplicateRecord
			}
		}
	}

	id := primitive.NewObjectID()
	record.ID = id
	record.CreatedAt = time.Now()
	record.UpdatedAt = record.CreatedAt
	clone := *record
	f.records[id] = &clone
	return id, nil
}

func (f *fakeStore) get(id primitive.ObjectID) *models.AirdropRecord {
	if record, ok := f.records[id]; ok {
		clone := *record
		return &clone
	}
	return nil
}

func (f *fakeStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.AirdropRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.get(id), nil
}

func (f *fakeStore) FindByContract(ctx context.Context, contractAddress, blockchain string) (*models.AirdropRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if contractAddress == "" {
		return nil, nil
	}
	for id, record := range f.records {
		if record.ContractAddress == models.NormalizeAddress(contractAddress) && record.Blockchain == blockchain {
			return f.get(id), nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindByToken(ctx context.Context, tokenAddress, blockchain string) (*models.AirdropRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tokenAddress == "" {
		return nil, nil
	}
	for id, record := range f.records {
		if record.TokenAddress == models.NormalizeAddress(tokenAddress) && record.Blockchain == blockchain {
			return f.get(id), nil
		}
	}
	return nil, nil
}

func (f *fakeStore) FindByNameSymbol(ctx context.Context, name, symbol string) (*models.AirdropRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name == "" || symbol == "" {
		return nil, nil
	}
	for id, record := range f.records {
		if record.Name == name && record.Symbol == symbol {
			return f.get(id), nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Query(ctx context.Context, params models.QueryParams) ([]*models.AirdropRecord, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AirdropRecord
	for id := range f.records {
		out = append(out, f.get(id))
	}
	return out, int64(len(out)), nil
}

func (f *fakeStore) FindByStatuses(ctx context.Context, statuses []models.Status) ([]*models.AirdropRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.AirdropRecord
	for id, record := range f.records {
		for _, status := range statuses {
			if record.Status == status {
				out = append(out, f.get(id))
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateFields(ctx context.Context, id primitive.ObjectID, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return nil
	}
	for key, value := range fields {
		switch key {
		case "description":
			record.Description = value.(string)
		case "website":
			record.Website = value.(string)
		case "total_value":
			record.TotalValue = value.(string)
		case "end_date":
			record.EndDate = value.(*time.Time)
		case "start_date":
			record.StartDate = value.(*time.Time)
		case "risks.level":
			record.Risks.Level = value.(models.RiskLevel)
		case "contract_info":
			record.ContractInfo = value.(models.ContractInfo)
		}
	}
	record.UpdatedAt = time.Now()
	return nil
}

func (f *fakeStore) AppendSource(ctx context.Context, id primitive.ObjectID, source models.Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record, ok := f.records[id]; ok {
		record.Sources = append(record.Sources, source)
	}
	return nil
}

func (f *fakeStore) SetStatus(ctx context.Context, id primitive.ObjectID, from, to models.Status, actor string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record, ok := f.records[id]; ok {
		record.Status = to
		record.Metadata.VerificationHistory = append(record.Metadata.VerificationHistory, models.VerificationEvent{
			Timestamp: time.Now(), Actor: actor, Action: "status_change", From: string(from), To: string(to),
		})
	}
	return nil
}

func (f *fakeStore) SetVerificationLevel(ctx context.Context, id primitive.ObjectID, from, to models.VerificationLevel, actor string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record, ok := f.records[id]; ok {
		record.VerificationLevel = to
		record.Metadata.VerificationHistory = append(record.Metadata.VerificationHistory, models.VerificationEvent{
			Timestamp: time.Now(), Actor: actor, Action: "level_change", From: string(from), To: string(to),
		})
	}
	return nil
}

func (f *fakeStore) SetContractInfo(ctx context.Context, id primitive.ObjectID, info models.ContractInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record, ok := f.records[id]; ok {
		record.ContractInfo = info
	}
	return nil
}

func (f *fakeStore) AddRiskWarning(ctx context.Context, id primitive.ObjectID, warning string) (*models.RiskAssessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	record.Risks.AddWarning(warning)
	risks := record.Risks
	return &risks, nil
}

func (f *fakeStore) IncrementViews(ctx context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record, ok := f.records[id]; ok {
		record.Analytics.Views++
	}
	return nil
}

func (f *fakeStore) RecordClaim(ctx context.Context, claim *models.UserClaim) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := claim.WalletAddress + "|" + claim.AirdropID.Hex()
	if _, exists := f.claims[key]; exists {
		return store.ErrAlreadyClaimed
	}
	f.claims[key] = claim

	if record, ok := f.records[claim.AirdropID]; ok {
		record.Analytics.Claims++
		if claim.Claimed {
			record.Analytics.SuccessfulClaims++
			record.Analytics.InsertTopClaim(models.TopClaim{
				WalletAddress: claim.WalletAddress,
				Amount:        claim.Amount,
				TxHash:        claim.TxHash,
				ClaimedAt:     claim.ClaimedAt,
			})
		}
	}
	return nil
}

func (f *fakeStore) DeleteStale(ctx context.Context, olderThan time.Time, maxViews int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for id, record := range f.records {
		if record.Status == models.StatusEnded &&
			record.VerificationLevel == models.LevelUnverified &&
			record.CreatedAt.Before(olderThan) &&
			record.Analytics.Views < maxViews {
			delete(f.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeStore) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	return nil, nil
}

func (f *fakeStore) CountByBlockchain(ctx context.Context) ([]models.ChainCount, error) {
	return nil, nil
}

func (f *fakeStore) SaveSyncResult(ctx context.Context, result *models.SyncResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs = append(f.syncs, result)
	return nil
}

func (f *fakeStore) LatestSyncResult(ctx context.Context) (*models.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.syncs) == 0 {
		return nil, nil
	}
	return f.syncs[len(f.syncs)-1], nil
}

func (f *fakeStore) Close(ctx context.Context) error { return nil }

// fakeProber serves canned probe results keyed by address. Unknown addresses
// get a live claimable contract so maintenance leaves them alone.
type fakeProber struct {
	mu      sync.Mutex
	results map[string]*probe.Result
	calls   int
}

func (p *fakeProber) Verify(ctx context.Context, address, blockchain string) (*probe.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if result, ok := p.results[address]; ok {
		return result, nil
	}
	return &probe.Result{Address: address, Blockchain: blockchain, IsValid: true, HasClaimFunction: true}, nil
}

func (p *fakeProber) set(address string, result *probe.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.results == nil {
		p.results = make(map[string]*probe.Result)
	}
	p.results[address] = result
}

// staticFetcher returns a fixed candidate list, optionally after a delay.
type staticFetcher struct {
	name       string
	candidates []models.Candidate
	delay      time.Duration
}

func (s *staticFetcher) Name() string { return s.name }

func (s *staticFetcher) Fetch(ctx context.Context) ([]models.Candidate, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.candidates, nil
}

func testLogger() *logger.Logger {
	return logger.New("error", false, "", "text", logger.Rotation{})
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		Interval:          time.Hour,
		RetentionAge:      90 * 24 * time.Hour,
		RetentionMinViews: 10,
	}
}

func newTestReconciler(st store.Store, pr ContractProber, fetchers ...sources.Fetcher) *Reconciler {
	return NewReconciler(st, nil, pr, fetchers, nil, testSyncConfig(), testLogger())
}

const (
	contractA = "0x00000000000000000000000000000000000000a1"
	contractB = "0x00000000000000000000000000000000000000b2"
)

func trustedCandidate() models.Candidate {
	return models.Candidate{
		Name:            "Drop Token",
		Symbol:          "DROP",
		ContractAddress: contractA,
		Blockchain:      "ethereum",
		Description:     "Retroactive distribution",
		Status:          models.StatusActive,
		Source:          models.SourceCoinGecko,
		SourceURL:       "https://api.example.com/airdrops",
	}
}

func TestSyncCreatesRecordsWithSourceDerivedTrust(t *testing.T) {
	st := newFakeStore()
	pr := &fakeProber{}

	community := models.Candidate{
		Name:       "Rumor Drop",
		Symbol:     "RMR",
		Blockchain: "ethereum",
		Status:     models.StatusUpcoming,
		Source:     models.SourceCommunity,
		SourceURL:  "https://forum.example.com/rumor",
	}

	r := newTestReconciler(st, pr, &staticFetcher{name: "a", candidates: []models.Candidate{trustedCandidate(), community}})

	result, err := r.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, result.NewCount)
	require.Empty(t, result.Errors)

	trusted, err := st.FindByContract(context.Background(), contractA, "ethereum")
	require.NoError(t, err)
	require.NotNil(t, trusted)
	require.Equal(t, models.LevelCommunity, trusted.VerificationLevel)
	require.Equal(t, models.RiskLow, trusted.Risks.Level)
	require.Len(t, trusted.Sources, 1)
	require.Equal(t, 80, trusted.Sources[0].Confidence)

	rumor, err := st.FindByNameSymbol(context.Background(), "Rumor Drop", "RMR")
	require.NoError(t, err)
	require.NotNil(t, rumor)
	require.Equal(t, models.LevelUnverified, rumor.VerificationLevel)
	require.Equal(t, models.RiskMedium, rumor.Risks.Level)
}

func TestSyncIsIdempotentAcrossRuns(t *testing.T) {
	st := newFakeStore()
	pr := &fakeProber{}
	r := newTestReconciler(st, pr, &staticFetcher{name: "a", candidates: []models.Candidate{trustedCandidate()}})

	first, err := r.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.NewCount)

	second, err := r.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, second.NewCount)
	require.Equal(t, 0, second.UpdatedCount)

	records, total, err := st.Query(context.Background(), models.QueryParams{})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, records[0].Sources, 1)
}

func TestSyncMergeNeverErasesWithEmptyFields(t *testing.T) {
	st := newFakeStore()
	pr := &fakeProber{}

	full := trustedCandidate()
	r := newTestReconciler(st, pr, &staticFetcher{name: "a", candidates: []models.Candidate{full}})
	_, err := r.Sync(context.Background())
	require.NoError(t, err)

	// Same identity from a second source: no description, but a website and
	// a new provenance URL.
	sparse := trustedCandidate()
	sparse.Description = ""
	sparse.Website = "https://drop.example.com"
	sparse.Source = models.SourceCommunity
	sparse.SourceURL = "https://forum.example.com/drop"

	r2 := newTestReconciler(st, pr, &staticFetcher{name: "b", candidates: []models.Candidate{sparse}})
	result, err := r2.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.NewCount)
	require.Equal(t, 1, result.UpdatedCount)

	record, err := st.FindByContract(context.Background(), contractA, "ethereum")
	require.NoError(t, err)
	require.Equal(t, "Retroactive distribution", record.Description)
	require.Equal(t, "https://drop.example.com", record.Website)
	require.Len(t, record.Sources, 2)
}

func TestSyncSingleFlight(t *testing.T) {
	st := newFakeStore()
	pr := &fakeProber{}
	slow := &staticFetcher{name: "slow", delay: 200 * time.Millisecond}
	r := newTestReconciler(st, pr, slow)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := r.Sync(context.Background())
		require.NoError(t, err)
	}()

	require.Eventually(t, r.SyncInProgress, time.Second, time.Millisecond)

	_, err := r.Sync(context.Background())
	require.ErrorIs(t, err, ErrSyncInProgress)

	<-done
	require.False(t, r.SyncInProgress())
}

func TestSyncEnrichmentRatchetsUnverified(t *testing.T) {
	st := newFakeStore()
	pr := &fakeProber{}
	pr.set(contractB, &probe.Result{
		IsValid:          true,
		IsToken:          true,
		HasClaimFunction: true,
		Verified:         true,
	})

	candidate := models.Candidate{
		Name:            "Fresh Drop",
		Symbol:          "FRSH",
		ContractAddress: contractB,
		Blockchain:      "ethereum",
		Status:          models.StatusActive,
		Source:          models.SourceCommunity,
		SourceURL:       "https://forum.example.com/fresh",
	}

	r := newTestReconciler(st, pr, &staticFetcher{name: "a", candidates: []models.Candidate{candidate}})
	result, err := r.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.VerifiedCount)

	record, err := st.FindByContract(context.Background(), contractB, "ethereum")
	require.NoError(t, err)
	require.Equal(t, models.LevelCommunity, record.VerificationLevel)
	require.Equal(t, models.RiskLow, record.Risks.Level)
	require.True(t, record.ContractInfo.HasClaimFunction)
}

func TestEnrichmentNeverDowngradesOnProbeFlip(t *testing.T) {
	st := newFakeStore()
	pr := &fakeProber{}
	pr.set(contractB, &probe.Result{
		IsValid:          true,
		IsToken:          true,
		HasClaimFunction: true,
		Verified:         true,
	})

	candidate := models.Candidate{
		Name:            "Flip Drop",
		Symbol:          "FLIP",
		ContractAddress: contractB,
		Blockchain:      "ethereum",
		Status:          models.StatusActive,
		Source:          models.SourceCommunity,
		SourceURL:       "https://forum.example.com/flip",
	}

	r := newTestReconciler(st, pr, &staticFetcher{name: "a", candidates: []models.Candidate{candidate}})
	_, err := r.Sync(context.Background())
	require.NoError(t, err)

	record, err := st.FindByContract(context.Background(), contractB, "ethereum")
	require.NoError(t, err)
	require.Equal(t, models.LevelCommunity, record.VerificationLevel)

	// The chain now reports the contract as unverified; the earned level
	// must stay put.
	pr.set(contractB, &probe.Result{IsValid: true, HasClaimFunction: true, Verified: false})

	result, err := r.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.VerifiedCount)

	record, err = st.FindByContract(context.Background(), contractB, "ethereum")
	require.NoError(t, err)
	require.Equal(t, models.LevelCommunity, record.VerificationLevel)
	require.False(t, record.ContractInfo.Verified)
}

func TestStaleActiveCandidateDoesNotReopenEndedRecord(t *testing.T) {
	st := newFakeStore()
	pr := &fakeProber{}

	r := newTestReconciler(st, pr, &staticFetcher{name: "a", candidates: []models.Candidate{trustedCandidate()}})
	_, err := r.Sync(context.Background())
	require.NoError(t, err)

	record, err := st.FindByContract(context.Background(), contractA, "ethereum")
	require.NoError(t, err)
	require.NoError(t, st.SetStatus(context.Background(), record.ID, models.StatusActive, models.StatusEnded, "reconciler:liveness"))

	// The same source keeps reporting the campaign as active.
	_, err = r.Sync(context.Background())
	require.NoError(t, err)

	record, err = st.FindByContract(context.Background(), contractA, "ethereum")
	require.NoError(t, err)
	require.Equal(t, models.StatusEnded, record.Status)
}

func TestMaintenanceExpiresPastDeadline(t *testing.T) {
	st := newFakeStore()
	pr := &fakeProber{}
	past := time.Now().Add(-time.Hour)

	record := &models.AirdropRecord{
		Name:              "Old Drop",
		Symbol:            "OLD",
		Blockchain:        "ethereum",
		Status:            models.StatusActive,
		VerificationLevel: models.LevelCommunity,
		EndDate:           &past,
	}
	_, err := st.Insert(context.Background(), record)
	require.NoError(t, err)

	r := newTestReconciler(st, pr)
	result, err := r.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.ExpiredCount)

	updated, err := st.FindByID(context.Background(), record.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusEnded, updated.Status)
	require.Len(t, updated.Metadata.VerificationHistory, 1)

	// Second run: ended records are out of scope, no second audit entry.
	result, err = r.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.ExpiredCount)

	updated, err = st.FindByID(context.Background(), record.ID)
	require.NoError(t, err)
	require.Len(t, updated.Metadata.VerificationHistory, 1)
}

func TestMaintenanceEndsDeadContracts(t *testing.T) {
	st := newFakeStore()
	pr := &fakeProber{}

	// Valid contract, no claim path: liveness says ended.
	pr.set(contractA, &probe.Result{IsValid: true, HasClaimFunction: false})

	// Unreachable chain: no code readable, status untouched.
	pr.set(contractB, &probe.Result{IsValid: false, ClaimCapability: probe.CapabilityIndeterminate})

	dead := &models.AirdropRecord{
		Name: "Dead", Symbol: "DED", Blockchain: "ethereum",
		ContractAddress: contractA, Status: models.StatusActive,
		VerificationLevel: models.LevelCommunity,
	}
	unknown := &models.AirdropRecord{
		Name: "Unknown", Symbol: "UNK", Blockchain: "ethereum",
		ContractAddress: contractB, Status: models.StatusActive,
		VerificationLevel: models.LevelCommunity,
	}
	_, err := st.Insert(context.Background(), dead)
	require.NoError(t, err)
	_, err = st.Insert(context.Background(), unknown)
	require.NoError(t, err)

	r := newTestReconciler(st, pr)
	_, err = r.Sync(context.Background())
	require.NoError(t, err)

	deadAfter, _ := st.FindByID(context.Background(), dead.ID)
	require.Equal(t, models.StatusEnded, deadAfter.Status)

	unknownAfter, _ := st.FindByID(context.Background(), unknown.ID)
	require.Equal(t, models.StatusActive, unknownAfter.Status)
}

func TestRetentionSweep(t *testing.T) {
	st := newFakeStore()
	pr := &fakeProber{}

	stale := &models.AirdropRecord{
		Name: "Stale", Symbol: "STL", Blockchain: "ethereum",
		Status:            models.StatusEnded,
		VerificationLevel: models.LevelUnverified,
	}
	kept := &models.AirdropRecord{
		Name: "Kept", Symbol: "KPT", Blockchain: "ethereum",
		Status:            models.StatusEnded,
		VerificationLevel: models.LevelCommunity,
	}
	_, err := st.Insert(context.Background(), stale)
	require.NoError(t, err)
	_, err = st.Insert(context.Background(), kept)
	require.NoError(t, err)

	// Backdate both past the retention horizon.
	st.mu.Lock()
	for _, record := range st.records {
		record.CreatedAt = time.Now().Add(-120 * 24 * time.Hour)
	}
	st.mu.Unlock()

	r := newTestReconciler(st, pr)
	result, err := r.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), result.DeletedCount)

	gone, _ := st.FindByID(context.Background(), stale.ID)
	require.Nil(t, gone)
	still, _ := st.FindByID(context.Background(), kept.ID)
	require.NotNil(t, still)
}

func TestHandleClaimOpenedReopensEndedRecord(t *testing.T) {
	st := newFakeStore()
	pr := &fakeProber{}

	record := &models.AirdropRecord{
		Name: "Season Two", Symbol: "SSN", Blockchain: "ethereum",
		ContractAddress: contractA, Status: models.StatusEnded,
		VerificationLevel: models.LevelCommunity,
	}
	_, err := st.Insert(context.Background(), record)
	require.NoError(t, err)

	r := newTestReconciler(st, pr)
	err = r.HandleEvent(context.Background(), models.ChainEvent{
		Type:            models.EventClaimOpened,
		Blockchain:      "ethereum",
		ContractAddress: contractA,
	})
	require.NoError(t, err)

	updated, _ := st.FindByID(context.Background(), record.ID)
	require.Equal(t, models.StatusActive, updated.Status)
}

func TestHandleDiscoveryCreatesRecord(t *testing.T) {
	st := newFakeStore()
	pr := &fakeProber{}
	pr.set(contractB, &probe.Result{
		IsValid:          true,
		IsToken:          true,
		Name:             "Found Onchain",
		Symbol:           "FND",
		HasClaimFunction: true,
	})

	r := newTestReconciler(st, pr)
	err := r.HandleEvent(context.Background(), models.ChainEvent{
		Type:            models.EventContractDeployed,
		Blockchain:      "ethereum",
		ContractAddress: contractB,
		PossibleAirdrop: true,
	})
	require.NoError(t, err)

	record, err := st.FindByContract(context.Background(), contractB, "ethereum")
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, "Found Onchain", record.Name)
	require.Equal(t, models.StatusActive, record.Status)
	require.Equal(t, models.LevelUnverified, record.VerificationLevel)
	require.Len(t, record.Sources, 1)
	require.Equal(t, models.SourceMonitoring, record.Sources[0].Type)
}

func TestHandleDiscoveryDropsContractsWithoutCode(t *testing.T) {
	st := newFakeStore()
	pr := &fakeProber{}
	pr.set(contractB, &probe.Result{IsValid: false})

	r := newTestReconciler(st, pr)
	err := r.HandleEvent(context.Background(), models.ChainEvent{
		Type:            models.EventTokenTransfer,
		Blockchain:      "ethereum",
		ContractAddress: contractB,
		PossibleAirdrop: true,
	})
	require.NoError(t, err)

	record, err := st.FindByContract(context.Background(), contractB, "ethereum")
	require.NoError(t, err)
	require.Nil(t, record)
}

func TestUpdateVerificationLevelRatchet(t *testing.T) {
	st := newFakeStore()
	pr := &fakeProber{}

	record := &models.AirdropRecord{
		Name: "Rated", Symbol: "RTD", Blockchain: "ethereum",
		Status: models.StatusActive, VerificationLevel: models.LevelCommunity,
	}
	_, err := st.Insert(context.Background(), record)
	require.NoError(t, err)
	id := record.ID.Hex()

	r := newTestReconciler(st, pr)

	require.ErrorIs(t, r.UpdateVerificationLevel(context.Background(), id, models.LevelUnverified, "mod"), ErrLevelDowngrade)

	require.NoError(t, r.UpdateVerificationLevel(context.Background(), id, models.LevelOfficial, "mod"))
	updated, _ := st.FindByID(context.Background(), record.ID)
	require.Equal(t, models.LevelOfficial, updated.VerificationLevel)

	// Scam is an allowed terminal override and escalates risk.
	require.NoError(t, r.UpdateVerificationLevel(context.Background(), id, models.LevelScam, "mod"))
	updated, _ = st.FindByID(context.Background(), record.ID)
	require.Equal(t, models.LevelScam, updated.VerificationLevel)
	require.Equal(t, models.RiskHigh, updated.Risks.Level)

	// Nothing moves a scam record back.
	require.ErrorIs(t, r.UpdateVerificationLevel(context.Background(), id, models.LevelOfficial, "mod"), ErrLevelDowngrade)

	require.ErrorIs(t, r.UpdateVerificationLevel(context.Background(), primitive.NewObjectID().Hex(), models.LevelOfficial, "mod"), ErrRecordNotFound)
}

func TestRecordClaim(t *testing.T) {
	st := newFakeStore()
	pr := &fakeProber{}

	record := &models.AirdropRecord{
		Name: "Claimable", Symbol: "CLM", Blockchain: "ethereum",
		Status: models.StatusActive, VerificationLevel: models.LevelCommunity,
	}
	_, err := st.Insert(context.Background(), record)
	require.NoError(t, err)

	r := newTestReconciler(st, pr)
	wallet := "0x00000000000000000000000000000000000000cc"

	require.NoError(t, r.RecordClaim(context.Background(), record.ID.Hex(), wallet, true, "0xtx", 42.5))
	require.ErrorIs(t, r.RecordClaim(context.Background(), record.ID.Hex(), wallet, true, "0xtx2", 10),
		store.ErrAlreadyClaimed)
	require.ErrorIs(t, r.RecordClaim(context.Background(), primitive.NewObjectID().Hex(), wallet, true, "", 1),
		ErrRecordNotFound)

	updated, _ := st.FindByID(context.Background(), record.ID)
	require.Equal(t, int64(1), updated.Analytics.Claims)
	require.Equal(t, int64(1), updated.Analytics.SuccessfulClaims)
	require.Len(t, updated.Analytics.TopClaims, 1)
	require.Equal(t, 42.5, updated.Analytics.TopClaims[0].Amount)
}

func TestLastSyncResultFallsBackToStore(t *testing.T) {
	st := newFakeStore()
	pr := &fakeProber{}
	r := newTestReconciler(st, pr)

	last, err := r.LastSyncResult(context.Background())
	require.NoError(t, err)
	require.Nil(t, last)

	_, err = r.Sync(context.Background())
	require.NoError(t, err)

	last, err = r.LastSyncResult(context.Background())
	require.NoError(t, err)
	require.NotNil(t, last)

	// A fresh reconciler with no memory still finds the stored result.
	fresh := newTestReconciler(st, pr)
	last, err = fresh.LastSyncResult(context.Background())
	require.NoError(t, err)
	require.NotNil(t, last)
}
