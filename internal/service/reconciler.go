package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"dropradar/internal/cache"
	"dropradar/internal/config"
	"dropradar/internal/metrics"
	"dropradar/internal/models"
	"dropradar/internal/probe"
	"dropradar/internal/sources"
	"dropradar/internal/store"
	"dropradar/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrSyncInProgress is returned when a sync is requested while another run
// holds the single-flight flag.
var ErrSyncInProgress = errors.New("sync already in progress")

// ErrRecordNotFound is returned for operations against an unknown record id.
var ErrRecordNotFound = errors.New("record not found")

// ErrLevelDowngrade is returned when a verification-level change would move
// the trust ratchet backwards.
var ErrLevelDowngrade = errors.New("verification level can only move upward")

// ContractProber abstracts the on-chain verification step so tests can
// substitute canned results.
type ContractProber interface {
	Verify(ctx context.Context, address, blockchain string) (*probe.Result, error)
}

// Notifier receives domain notifications for fan-out to streaming clients.
// Optional; nil disables streaming.
type Notifier interface {
	Publish(kind string, payload interface{})
}

// Reconciler owns the write path to the canonical record store: it merges
// source candidates, enriches records with probe results, applies lifecycle
// maintenance and consumes monitor events. Reads stay cheap; all mutations
// funnel through here.
type Reconciler struct {
	store    store.Store
	cache    cache.Cache
	prober   ContractProber
	fetchers []sources.Fetcher
	notifier Notifier
	logger   *logger.Logger
	cfg      config.SyncConfig

	syncing atomic.Bool

	mu         sync.RWMutex
	lastResult *models.SyncResult
}

// NewReconciler wires the reconciliation engine. cache and notifier may be
// nil.
func NewReconciler(st store.Store, ca cache.Cache, pr ContractProber, fetchers []sources.Fetcher, notifier Notifier, cfg config.SyncConfig, log *logger.Logger) *Reconciler {
	return &Reconciler{
		store:    st,
		cache:    ca,
		prober:   pr,
		fetchers: fetchers,
		notifier: notifier,
		logger:   log,
		cfg:      cfg,
	}
}

// SyncInProgress reports whether a reconciliation run currently holds the
// single-flight flag.
func (r *Reconciler) SyncInProgress() bool {
	return r.syncing.Load()
}

// Sync runs one full reconciliation: fetch candidates from every source,
// merge them into the canonical store, enrich contract-bearing records and
// run the lifecycle maintenance pass. Single-flight: a concurrent call gets
// ErrSyncInProgress instead of a second run.
func (r *Reconciler) Sync(ctx context.Context) (*models.SyncResult, error) {
	if !r.syncing.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer r.syncing.Store(false)

	start := time.Now()
	result := &models.SyncResult{StartedAt: start}
	r.logger.Info("sync started")

	candidates := sources.FetchAll(ctx, r.fetchers, r.logger)
	r.logger.Info("sync collected %d candidates from %d sources", len(candidates), len(r.fetchers))

	for _, candidate := range candidates {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, "sync cancelled")
			break
		}

		if err := r.processCandidate(ctx, candidate, result); err != nil {
			// Per-candidate isolation: one bad candidate never aborts the run.
			metrics.CandidatesProcessedTotal.WithLabelValues("error").Inc()
			result.Errors = append(result.Errors, fmt.Sprintf("%s (%s): %v", candidate.Name, candidate.Source, err))
			r.logger.Warn("candidate %s from %s failed: %v", candidate.Name, candidate.Source, err)
		}
	}

	r.maintain(ctx, result)

	result.FinishedAt = time.Now()
	metrics.SyncRunsTotal.WithLabelValues("success").Inc()
	metrics.SyncDuration.Observe(result.FinishedAt.Sub(start).Seconds())

	r.persistResult(ctx, result)
	r.logger.Info("sync finished: %d new, %d updated, %d verified, %d expired, %d deleted, %d errors",
		result.NewCount, result.UpdatedCount, result.VerifiedCount, result.ExpiredCount, result.DeletedCount, len(result.Errors))

	return result, nil
}

// processCandidate resolves one candidate against the canonical store:
// identity lookup by contract, then token, then name+symbol; first match
// wins. A match merges, no match creates.
func (r *Reconciler) processCandidate(ctx context.Context, candidate models.Candidate, result *models.SyncResult) error {
	candidate.ContractAddress = models.NormalizeAddress(candidate.ContractAddress)
	candidate.TokenAddress = models.NormalizeAddress(candidate.TokenAddress)

	if candidate.Name == "" && candidate.ContractAddress == "" {
		metrics.CandidatesProcessedTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	existing, err := r.resolve(ctx, candidate)
	if err != nil {
		return err
	}

	if existing != nil {
		if err := r.mergeCandidate(ctx, existing, candidate, result); err != nil {
			return err
		}
	} else {
		record, err := r.createRecord(ctx, candidate, result)
		if err != nil {
			return err
		}
		existing = record
	}

	metrics.CandidatesProcessedTotal.WithLabelValues("ok").Inc()

	if existing != nil && existing.ContractAddress != "" {
		if err := r.enrich(ctx, existing, result); err != nil {
			return fmt.Errorf("enrichment: %w", err)
		}
	}
	return nil
}

// resolve performs the ordered identity lookup.
func (r *Reconciler) resolve(ctx context.Context, candidate models.Candidate) (*models.AirdropRecord, error) {
	if candidate.ContractAddress != "" {
		record, err := r.store.FindByContract(ctx, candidate.ContractAddress, candidate.Blockchain)
		if err != nil || record != nil {
			return record, err
		}
	}
	if candidate.TokenAddress != "" {
		record, err := r.store.FindByToken(ctx, candidate.TokenAddress, candidate.Blockchain)
		if err != nil || record != nil {
			return record, err
		}
	}
	return r.store.FindByNameSymbol(ctx, candidate.Name, candidate.Symbol)
}

// mergeCandidate folds new candidate data into an existing record. Only
// fields the candidate actually carries are written, and only when they
// differ; empty candidate fields never erase stored data.
func (r *Reconciler) mergeCandidate(ctx context.Context, record *models.AirdropRecord, candidate models.Candidate, result *models.SyncResult) error {
	fields := map[string]interface{}{}

	if candidate.Description != "" && candidate.Description != record.Description {
		fields["description"] = candidate.Description
	}
	if candidate.Website != "" && candidate.Website != record.Website {
		fields["website"] = candidate.Website
	}
	if candidate.TotalValue != "" && candidate.TotalValue != record.TotalValue {
		fields["total_value"] = candidate.TotalValue
	}
	if candidate.EndDate != nil && (record.EndDate == nil || !candidate.EndDate.Equal(*record.EndDate)) {
		fields["end_date"] = candidate.EndDate
	}
	if candidate.StartDate != nil && record.StartDate == nil {
		fields["start_date"] = candidate.StartDate
	}

	changed := false
	if len(fields) > 0 {
		if err := r.store.UpdateFields(ctx, record.ID, fields); err != nil {
			return err
		}
		changed = true
	}

	if candidate.SourceURL != "" && !record.HasSourceURL(candidate.SourceURL) {
		source := models.Source{
			Type:        candidate.Source,
			URL:         candidate.SourceURL,
			LastUpdated: time.Now(),
			Confidence:  models.SourceConfidence(candidate.Source),
		}
		if err := r.store.AppendSource(ctx, record.ID, source); err != nil {
			return err
		}
		record.Sources = append(record.Sources, source)
		changed = true
	}

	if changed {
		result.UpdatedCount++
		metrics.RecordsTotal.WithLabelValues("updated").Inc()
	}
	return nil
}

// createRecord inserts a new canonical record for an unmatched candidate.
// Trusted sources start at community level with low risk; everything else
// starts unverified at medium risk. A duplicate-key race falls back to the
// merge path.
func (r *Reconciler) createRecord(ctx context.Context, candidate models.Candidate, result *models.SyncResult) (*models.AirdropRecord, error) {
	level := models.LevelUnverified
	risk := models.RiskMedium
	if models.TrustedSource(candidate.Source) {
		level = models.LevelCommunity
		risk = models.RiskLow
	}

	status := candidate.Status
	if status == "" {
		status = models.StatusUpcoming
	}

	record := &models.AirdropRecord{
		Name:              candidate.Name,
		Symbol:            candidate.Symbol,
		Description:       candidate.Description,
		Blockchain:        candidate.Blockchain,
		ContractAddress:   candidate.ContractAddress,
		TokenAddress:      candidate.TokenAddress,
		Website:           candidate.Website,
		StartDate:         candidate.StartDate,
		EndDate:           candidate.EndDate,
		TotalValue:        candidate.TotalValue,
		Status:            status,
		VerificationLevel: level,
		Risks:             models.RiskAssessment{Level: risk},
	}
	if candidate.SourceURL != "" {
		record.Sources = []models.Source{{
			Type:        candidate.Source,
			URL:         candidate.SourceURL,
			LastUpdated: time.Now(),
			Confidence:  models.SourceConfidence(candidate.Source),
		}}
	}

	_, err := r.store.Insert(ctx, record)
	if errors.Is(err, store.ErrDuplicateRecord) {
		// Lost the create race; the winner's record absorbs this candidate.
		winner, findErr := r.resolve(ctx, candidate)
		if findErr != nil {
			return nil, findErr
		}
		if winner == nil {
			return nil, err
		}
		return winner, r.mergeCandidate(ctx, winner, candidate, result)
	}
	if err != nil {
		return nil, err
	}

	result.NewCount++
	metrics.RecordsTotal.WithLabelValues("created").Inc()
	r.publish("record_created", record)
	return record, nil
}

// enrich probes a contract-bearing record and merges the on-chain findings.
// The trust ratchet only moves unverified records up to community, and only
// on a verified, valid contract; probing never downgrades.
func (r *Reconciler) enrich(ctx context.Context, record *models.AirdropRecord, result *models.SyncResult) error {
	probed, err := r.prober.Verify(ctx, record.ContractAddress, record.Blockchain)
	if err != nil {
		return err
	}

	info := models.ContractInfo{
		Verified:         probed.Verified,
		HasClaimFunction: probed.HasClaimFunction,
		Owner:            probed.Owner,
		LastActivity:     probed.LastActivity,
	}
	if err := r.store.SetContractInfo(ctx, record.ID, info); err != nil {
		return err
	}
	record.ContractInfo = info

	if probed.Verified && probed.IsValid && record.VerificationLevel == models.LevelUnverified {
		if err := r.store.SetVerificationLevel(ctx, record.ID, models.LevelUnverified, models.LevelCommunity, "prober"); err != nil {
			return err
		}
		if err := r.store.UpdateFields(ctx, record.ID, map[string]interface{}{"risks.level": models.RiskLow}); err != nil {
			return err
		}
		record.VerificationLevel = models.LevelCommunity
		result.VerifiedCount++
	}
	return nil
}

// maintain runs the lifecycle pass: expire past-deadline records, end
// airdrops whose contracts stopped being claimable, and purge stale noise.
func (r *Reconciler) maintain(ctx context.Context, result *models.SyncResult) {
	now := time.Now()

	live, err := r.store.FindByStatuses(ctx, []models.Status{models.StatusUpcoming, models.StatusActive})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("maintenance query: %v", err))
		return
	}

	for _, record := range live {
		if ctx.Err() != nil {
			return
		}

		if record.Expired(now) {
			if err := r.endRecord(ctx, record, "expiry"); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("expire %s: %v", record.Name, err))
				continue
			}
			result.ExpiredCount++
			continue
		}

		if record.ContractAddress == "" {
			continue
		}

		probed, err := r.prober.Verify(ctx, record.ContractAddress, record.Blockchain)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("liveness %s: %v", record.Name, err))
			continue
		}
		// Only a readable, valid contract with no live claim path ends the
		// record; unreachable chains leave the status alone.
		if probed.IsValid && !probe.IsAirdropActive(probed, now) {
			if err := r.endRecord(ctx, record, "liveness"); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("end %s: %v", record.Name, err))
				continue
			}
			result.ExpiredCount++
		}
	}

	deleted, err := r.store.DeleteStale(ctx, now.Add(-r.cfg.RetentionAge), r.cfg.RetentionMinViews)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("retention sweep: %v", err))
		return
	}
	result.DeletedCount = deleted
	if deleted > 0 {
		metrics.RecordsTotal.WithLabelValues("deleted").Add(float64(deleted))
		r.logger.Info("retention sweep removed %d stale records", deleted)
	}
}

// endRecord moves a record to ended, idempotently: already-ended records are
// a no-op, never a second audit entry.
func (r *Reconciler) endRecord(ctx context.Context, record *models.AirdropRecord, reason string) error {
	if record.Status == models.StatusEnded {
		return nil
	}
	if err := r.store.SetStatus(ctx, record.ID, record.Status, models.StatusEnded, "reconciler:"+reason); err != nil {
		return err
	}
	record.Status = models.StatusEnded
	metrics.RecordsTotal.WithLabelValues("expired").Inc()
	r.publish("record_ended", record)
	return nil
}

// persistResult snapshots the run result in memory, cache and store. Cache
// and store failures are logged, not fatal: the run itself succeeded.
func (r *Reconciler) persistResult(ctx context.Context, result *models.SyncResult) {
	r.mu.Lock()
	r.lastResult = result
	r.mu.Unlock()

	if err := r.store.SaveSyncResult(ctx, result); err != nil {
		r.logger.Warn("failed to persist sync result: %v", err)
	}
	if r.cache != nil {
		if err := r.cache.SetLastSyncResult(ctx, result); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
			r.logger.Warn("failed to cache sync result: %v", err)
		}
	}
}

// LastSyncResult returns the most recent run summary: in-memory first, then
// cache, then the store. Nil with no error when no sync has run yet.
func (r *Reconciler) LastSyncResult(ctx context.Context) (*models.SyncResult, error) {
	r.mu.RLock()
	cached := r.lastResult
	r.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	if r.cache != nil {
		if result, err := r.cache.GetLastSyncResult(ctx); err == nil && result != nil {
			return result, nil
		}
	}

	return r.store.LatestSyncResult(ctx)
}

// RunPeriodic blocks, running Sync on the configured interval until the
// context is cancelled. An in-flight manual sync just skips that tick.
func (r *Reconciler) RunPeriodic(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info("periodic sync every %s", r.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sync(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
				metrics.SyncRunsTotal.WithLabelValues("error").Inc()
				r.logger.Error("periodic sync failed: %v", err)
			}
		}
	}
}

// ConsumeEvents drains the monitor's event channel until it closes or the
// context is cancelled. Per-event failures are logged and dropped.
func (r *Reconciler) ConsumeEvents(ctx context.Context, events <-chan models.ChainEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := r.HandleEvent(ctx, event); err != nil {
				r.logger.Warn("event %s for %s failed: %v", event.Type, event.ContractAddress, err)
			}
		}
	}
}

// HandleEvent applies one monitor event to the canonical store.
func (r *Reconciler) HandleEvent(ctx context.Context, event models.ChainEvent) error {
	r.publish("chain_event", event)

	switch event.Type {
	case models.EventClaimOpened:
		return r.handleClaimOpened(ctx, event)
	case models.EventNewAirdrop, models.EventContractDeployed, models.EventTokenTransfer:
		return r.handleDiscovery(ctx, event)
	default:
		return nil
	}
}

// handleClaimOpened re-opens (or opens) claiming for a known contract. The
// on-chain signal overrides the forward-only lifecycle: an ended record goes
// back to active.
func (r *Reconciler) handleClaimOpened(ctx context.Context, event models.ChainEvent) error {
	record, err := r.store.FindByContract(ctx, event.ContractAddress, event.Blockchain)
	if err != nil {
		return err
	}
	if record == nil {
		// Unknown contract announcing claims: treat as a discovery.
		return r.handleDiscovery(ctx, event)
	}
	if record.Status == models.StatusActive {
		return nil
	}

	if err := r.store.SetStatus(ctx, record.ID, record.Status, models.StatusActive, "monitor:claim_opened"); err != nil {
		return err
	}
	record.Status = models.StatusActive
	r.publish("record_reopened", record)
	return nil
}

// handleDiscovery turns an on-chain observation into a candidate: probe the
// contract, drop anything without deployed code, and feed the synthesized
// candidate through the normal reconciliation path.
func (r *Reconciler) handleDiscovery(ctx context.Context, event models.ChainEvent) error {
	existing, err := r.store.FindByContract(ctx, event.ContractAddress, event.Blockchain)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	probed, err := r.prober.Verify(ctx, event.ContractAddress, event.Blockchain)
	if err != nil {
		return err
	}
	if !probed.IsValid {
		r.logger.Debug("dropping event for %s on %s: no deployed code", event.ContractAddress, event.Blockchain)
		return nil
	}

	name := probed.Name
	if name == "" {
		name = event.Name
	}
	if name == "" {
		name = "Unknown Airdrop " + shortAddress(event.ContractAddress)
	}
	symbol := probed.Symbol
	if symbol == "" {
		symbol = event.Symbol
	}

	candidate := models.Candidate{
		Name:            name,
		Symbol:          symbol,
		ContractAddress: event.ContractAddress,
		Blockchain:      event.Blockchain,
		Status:          models.StatusActive,
		Source:          models.SourceMonitoring,
		SourceURL:       fmt.Sprintf("onchain://%s/%s", event.Blockchain, event.ContractAddress),
	}

	var scratch models.SyncResult
	return r.processCandidate(ctx, candidate, &scratch)
}

func shortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:10]
}

// RecordClaim validates and records one wallet's claim against a record.
func (r *Reconciler) RecordClaim(ctx context.Context, airdropID string, wallet string, claimed bool, txHash string, amount float64) error {
	id, err := primitive.ObjectIDFromHex(airdropID)
	if err != nil {
		return fmt.Errorf("invalid airdrop id: %w", err)
	}

	record, err := r.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrRecordNotFound
	}

	claim := &models.UserClaim{
		AirdropID:     id,
		WalletAddress: models.NormalizeAddress(wallet),
		Claimed:       claimed,
		TxHash:        txHash,
		Amount:        amount,
		ClaimedAt:     time.Now(),
	}
	return r.store.RecordClaim(ctx, claim)
}

// UpdateVerificationLevel applies an explicit trust change. The ratchet only
// moves up; scam is allowed as a terminal override from any non-scam level.
func (r *Reconciler) UpdateVerificationLevel(ctx context.Context, airdropID string, to models.VerificationLevel, actor string) error {
	id, err := primitive.ObjectIDFromHex(airdropID)
	if err != nil {
		return fmt.Errorf("invalid airdrop id: %w", err)
	}

	record, err := r.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrRecordNotFound
	}

	from := record.VerificationLevel
	if to == from {
		return nil
	}
	scamOverride := to == models.LevelScam && from != models.LevelScam
	if !scamOverride && !to.Outranks(from) {
		return ErrLevelDowngrade
	}

	if err := r.store.SetVerificationLevel(ctx, id, from, to, actor); err != nil {
		return err
	}
	if scamOverride {
		if err := r.store.UpdateFields(ctx, id, map[string]interface{}{"risks.level": models.RiskHigh}); err != nil {
			return err
		}
	}
	return nil
}

// AddRiskWarning appends a warning; the store derives the risk level from
// the warning count.
func (r *Reconciler) AddRiskWarning(ctx context.Context, airdropID, warning string) (*models.RiskAssessment, error) {
	id, err := primitive.ObjectIDFromHex(airdropID)
	if err != nil {
		return nil, fmt.Errorf("invalid airdrop id: %w", err)
	}
	return r.store.AddRiskWarning(ctx, id, warning)
}

// IncrementViews bumps engagement for one record.
func (r *Reconciler) IncrementViews(ctx context.Context, airdropID string) error {
	id, err := primitive.ObjectIDFromHex(airdropID)
	if err != nil {
		return fmt.Errorf("invalid airdrop id: %w", err)
	}
	return r.store.IncrementViews(ctx, id)
}

func (r *Reconciler) publish(kind string, payload interface{}) {
	if r.notifier != nil {
		r.notifier.Publish(kind, payload)
	}
}
