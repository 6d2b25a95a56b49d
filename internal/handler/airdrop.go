package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"dropradar/internal/metrics"
	"dropradar/internal/models"
	"dropradar/internal/service"
	"dropradar/internal/store"
	"dropradar/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AirdropHandler serves the record API. Reads go straight to the store;
// every mutation goes through the reconciler.
type AirdropHandler struct {
	store      store.Store
	reconciler *service.Reconciler
	logger     *logger.Logger
}

func NewAirdropHandler(st store.Store, rec *service.Reconciler, log *logger.Logger) *AirdropHandler {
	return &AirdropHandler{store: st, reconciler: rec, logger: log}
}

func observe(c *gin.Context, start time.Time, status int) {
	metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, c.FullPath(), strconv.Itoa(status)).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, c.FullPath()).Observe(time.Since(start).Seconds())
}

// ListAirdrops returns a filtered, paginated record listing.
// ?legacy=true serves the reduced compatibility projection.
func (h *AirdropHandler) ListAirdrops(c *gin.Context) {
	start := time.Now()

	params := models.QueryParams{Limit: 50, Offset: 0}
	params.Blockchain = c.Query("blockchain")
	params.Status = models.Status(c.Query("status"))
	params.Level = models.VerificationLevel(c.Query("level"))
	params.Search = c.Query("search")

	if limitStr := c.Query("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 200 {
			params.Limit = limit
		}
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			params.Offset = offset
		}
	}

	records, total, err := h.store.Query(c.Request.Context(), params)
	if err != nil {
		observe(c, start, http.StatusInternalServerError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	observe(c, start, http.StatusOK)

	if c.Query("legacy") == "true" {
		legacy := make([]*models.LegacyAirdropRecord, 0, len(records))
		for _, record := range records {
			legacy = append(legacy, record.ToLegacy())
		}
		c.JSON(http.StatusOK, gin.H{
			"data":   legacy,
			"total":  total,
			"limit":  params.Limit,
			"offset": params.Offset,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   records,
		"total":  total,
		"limit":  params.Limit,
		"offset": params.Offset,
	})
}

// GetAirdrop returns one record by id.
func (h *AirdropHandler) GetAirdrop(c *gin.Context) {
	start := time.Now()

	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		observe(c, start, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid airdrop id"})
		return
	}

	record, err := h.store.FindByID(c.Request.Context(), id)
	if err != nil {
		observe(c, start, http.StatusInternalServerError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if record == nil {
		observe(c, start, http.StatusNotFound)
		c.JSON(http.StatusNotFound, gin.H{"error": "airdrop not found"})
		return
	}

	observe(c, start, http.StatusOK)
	if c.Query("legacy") == "true" {
		c.JSON(http.StatusOK, record.ToLegacy())
		return
	}
	c.JSON(http.StatusOK, record)
}

// GetStats returns the status and per-blockchain aggregations.
func (h *AirdropHandler) GetStats(c *gin.Context) {
	start := time.Now()

	byStatus, err := h.store.CountByStatus(c.Request.Context())
	if err != nil {
		observe(c, start, http.StatusInternalServerError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	byChain, err := h.store.CountByBlockchain(c.Request.Context())
	if err != nil {
		observe(c, start, http.StatusInternalServerError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var total int64
	for _, bucket := range byStatus {
		total += bucket.Count
	}

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, gin.H{
		"total":         total,
		"by_status":     byStatus,
		"by_blockchain": byChain,
	})
}

// TriggerSync kicks off a reconciliation run in the background. A run
// already in flight answers 409.
func (h *AirdropHandler) TriggerSync(c *gin.Context) {
	start := time.Now()

	if h.reconciler.SyncInProgress() {
		observe(c, start, http.StatusConflict)
		c.JSON(http.StatusConflict, gin.H{"error": "sync already in progress"})
		return
	}

	go func() {
		if _, err := h.reconciler.Sync(context.Background()); err != nil && !errors.Is(err, service.ErrSyncInProgress) {
			h.logger.Error("manual sync failed: %v", err)
		}
	}()

	observe(c, start, http.StatusAccepted)
	c.JSON(http.StatusAccepted, gin.H{"status": "sync started"})
}

// SyncStatus reports whether a run is in flight plus the last run summary.
func (h *AirdropHandler) SyncStatus(c *gin.Context) {
	start := time.Now()

	last, err := h.reconciler.LastSyncResult(c.Request.Context())
	if err != nil {
		observe(c, start, http.StatusInternalServerError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, gin.H{
		"in_progress": h.reconciler.SyncInProgress(),
		"last_sync":   last,
	})
}

type claimRequest struct {
	WalletAddress string  `json:"wallet_address" binding:"required"`
	Claimed       bool    `json:"claimed"`
	TxHash        string  `json:"tx_hash"`
	Amount        float64 `json:"amount"`
}

// RecordClaim records one wallet's claim submission against a record.
func (h *AirdropHandler) RecordClaim(c *gin.Context) {
	start := time.Now()

	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		observe(c, start, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.reconciler.RecordClaim(c.Request.Context(), c.Param("id"), req.WalletAddress, req.Claimed, req.TxHash, req.Amount)
	switch {
	case errors.Is(err, service.ErrRecordNotFound):
		observe(c, start, http.StatusNotFound)
		c.JSON(http.StatusNotFound, gin.H{"error": "airdrop not found"})
	case errors.Is(err, store.ErrAlreadyClaimed):
		observe(c, start, http.StatusConflict)
		c.JSON(http.StatusConflict, gin.H{"error": "claim already recorded for wallet"})
	case err != nil:
		observe(c, start, http.StatusInternalServerError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		observe(c, start, http.StatusCreated)
		c.JSON(http.StatusCreated, gin.H{"status": "claim recorded"})
	}
}

// RecordView bumps the engagement counter for one record.
func (h *AirdropHandler) RecordView(c *gin.Context) {
	start := time.Now()

	if err := h.reconciler.IncrementViews(c.Request.Context(), c.Param("id")); err != nil {
		observe(c, start, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	observe(c, start, http.StatusNoContent)
	c.Status(http.StatusNoContent)
}

type verificationRequest struct {
	Level models.VerificationLevel `json:"level" binding:"required"`
	Actor string                   `json:"actor"`
}

// SetVerificationLevel applies an explicit trust-level change.
func (h *AirdropHandler) SetVerificationLevel(c *gin.Context) {
	start := time.Now()

	var req verificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		observe(c, start, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := req.Actor
	if actor == "" {
		actor = "api"
	}

	err := h.reconciler.UpdateVerificationLevel(c.Request.Context(), c.Param("id"), req.Level, actor)
	switch {
	case errors.Is(err, service.ErrRecordNotFound):
		observe(c, start, http.StatusNotFound)
		c.JSON(http.StatusNotFound, gin.H{"error": "airdrop not found"})
	case errors.Is(err, service.ErrLevelDowngrade):
		observe(c, start, http.StatusConflict)
		c.JSON(http.StatusConflict, gin.H{"error": "verification level can only move upward"})
	case err != nil:
		observe(c, start, http.StatusInternalServerError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		observe(c, start, http.StatusOK)
		c.JSON(http.StatusOK, gin.H{"status": "verification level updated"})
	}
}

type warningRequest struct {
	Warning string `json:"warning" binding:"required"`
}

// AddWarning appends a risk warning and returns the recomputed assessment.
func (h *AirdropHandler) AddWarning(c *gin.Context) {
	start := time.Now()

	var req warningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		observe(c, start, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	risks, err := h.reconciler.AddRiskWarning(c.Request.Context(), c.Param("id"), req.Warning)
	if err != nil {
		observe(c, start, http.StatusInternalServerError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, risks)
}
