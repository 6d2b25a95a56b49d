package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dropradar/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrDuplicateRecord is returned when an insert loses the race on the
// (contract_address, blockchain) unique index. Callers fall back to the
// update path.
var ErrDuplicateRecord = errors.New("duplicate record for identity key")

// ErrAlreadyClaimed is returned when a wallet submits a second claim for the
// same airdrop.
var ErrAlreadyClaimed = errors.New("claim already recorded for wallet")

// Store is the persistent canonical record collection. All mutations are
// narrow atomic field updates, never whole-document read-modify-write.
type Store interface {
	Insert(ctx context.Context, record *models.AirdropRecord) (primitive.ObjectID, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.AirdropRecord, error)
	FindByContract(ctx context.Context, contractAddress, blockchain string) (*models.AirdropRecord, error)
	FindByToken(ctx context.Context, tokenAddress, blockchain string) (*models.AirdropRecord, error)
	FindByNameSymbol(ctx context.Context, name, symbol string) (*models.AirdropRecord, error)
	Query(ctx context.Context, params models.QueryParams) ([]*models.AirdropRecord, int64, error)
	FindByStatuses(ctx context.Context, statuses []models.Status) ([]*models.AirdropRecord, error)

	UpdateFields(ctx context.Context, id primitive.ObjectID, fields map[string]interface{}) error
	AppendSource(ctx context.Context, id primitive.ObjectID, source models.Source) error
	SetStatus(ctx context.Context, id primitive.ObjectID, from, to models.Status, actor string) error
	SetVerificationLevel(ctx context.Context, id primitive.ObjectID, from, to models.VerificationLevel, actor string) error
	SetContractInfo(ctx context.Context, id primitive.ObjectID, info models.ContractInfo) error
	AddRiskWarning(ctx context.Context, id primitive.ObjectID, warning string) (*models.RiskAssessment, error)
	IncrementViews(ctx context.Context, id primitive.ObjectID) error
	RecordClaim(ctx context.Context, claim *models.UserClaim) error
	DeleteStale(ctx context.Context, olderThan time.Time, maxViews int64) (int64, error)

	CountByStatus(ctx context.Context) ([]models.StatusCount, error)
	CountByBlockchain(ctx context.Context) ([]models.ChainCount, error)
	SaveSyncResult(ctx context.Context, result *models.SyncResult) error
	LatestSyncResult(ctx context.Context) (*models.SyncResult, error)

	Close(ctx context.Context) error
}

// MongoStore implements Store on MongoDB.
type MongoStore struct {
	client       *mongo.Client
	db           *mongo.Database
	airdropsColl *mongo.Collection
	claimsColl   *mongo.Collection
	syncColl     *mongo.Collection
}

// NewMongoStore connects, pings and creates the required indexes.
func NewMongoStore(uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:       client,
		db:           db,
		airdropsColl: db.Collection("airdrops"),
		claimsColl:   db.Collection("user_claims"),
		syncColl:     db.Collection("sync_runs"),
	}

	if err := s.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return s, nil
}

func (s *MongoStore) createIndexes(ctx context.Context) error {
	airdropIndexes := []mongo.IndexModel{
		{
			// Identity key. Partial: records without a contract address are
			// deduplicated by the name+symbol fallback instead.
			Keys: bson.D{
				{Key: "contract_address", Value: int32(1)},
				{Key: "blockchain", Value: int32(1)},
			},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"contract_address": bson.M{"$gt": ""}}),
		},
		{
			Keys: bson.D{
				{Key: "token_address", Value: int32(1)},
				{Key: "blockchain", Value: int32(1)},
			},
		},
		{
			Keys: bson.D{
				{Key: "name", Value: "text"},
				{Key: "symbol", Value: "text"},
				{Key: "description", Value: "text"},
			},
		},
		{
			Keys: bson.D{
				{Key: "status", Value: int32(1)},
			},
		},
		{
			Keys: bson.D{
				{Key: "end_date", Value: int32(1)},
			},
		},
		{
			Keys: bson.D{
				{Key: "updated_at", Value: int32(-1)},
			},
		},
	}

	if _, err := s.airdropsColl.Indexes().CreateMany(ctx, airdropIndexes); err != nil {
		return err
	}

	claimIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "wallet_address", Value: int32(1)},
			{Key: "airdrop_id", Value: int32(1)},
		},
		Options: options.Index().SetUnique(true),
	}

	if _, err := s.claimsColl.Indexes().CreateOne(ctx, claimIndex); err != nil {
		return err
	}

	syncIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "finished_at", Value: int32(-1)},
		},
	}

	if _, err := s.syncColl.Indexes().CreateOne(ctx, syncIndex); err != nil {
		return err
	}

	return nil
}

// Insert creates a new canonical record. Insert-or-fail semantics: a
// concurrent create for the same identity key surfaces as ErrDuplicateRecord.
func (s *MongoStore) Insert(ctx context.Context, record *models.AirdropRecord) (primitive.ObjectID, error) {
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now

	result, err := s.airdropsColl.InsertOne(ctx, record)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return primitive.NilObjectID, ErrDuplicateRecord
		}
		return primitive.NilObjectID, fmt.Errorf("failed to insert record: %w", err)
	}

	id, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, fmt.Errorf("unexpected inserted id type %T", result.InsertedID)
	}
	record.ID = id
	return id, nil
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*models.AirdropRecord, error) {
	var record models.AirdropRecord
	err := s.airdropsColl.FindOne(ctx, filter).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find record: %w", err)
	}
	return &record, nil
}

func (s *MongoStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.AirdropRecord, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoStore) FindByContract(ctx context.Context, contractAddress, blockchain string) (*models.AirdropRecord, error) {
	if contractAddress == "" {
		return nil, nil
	}
	return s.findOne(ctx, bson.M{
		"contract_address": models.NormalizeAddress(contractAddress),
		"blockchain":       blockchain,
	})
}

func (s *MongoStore) FindByToken(ctx context.Context, tokenAddress, blockchain string) (*models.AirdropRecord, error) {
	if tokenAddress == "" {
		return nil, nil
	}
	return s.findOne(ctx, bson.M{
		"token_address": models.NormalizeAddress(tokenAddress),
		"blockchain":    blockchain,
	})
}

// FindByNameSymbol is the fallback identity lookup for records with no
// contract address. Known false-positive risk across tokens sharing a
// ticker; accepted limitation.
func (s *MongoStore) FindByNameSymbol(ctx context.Context, name, symbol string) (*models.AirdropRecord, error) {
	if name == "" || symbol == "" {
		return nil, nil
	}
	return s.findOne(ctx, bson.M{"name": name, "symbol": symbol})
}

func (s *MongoStore) Query(ctx context.Context, params models.QueryParams) ([]*models.AirdropRecord, int64, error) {
	filter := bson.M{}
	if params.Blockchain != "" {
		filter["blockchain"] = params.Blockchain
	}
	if params.Status != "" {
		filter["status"] = params.Status
	}
	if params.Level != "" {
		filter["verification_level"] = params.Level
	}
	if params.Search != "" {
		filter["$text"] = bson.M{"$search": params.Search}
	}

	count, err := s.airdropsColl.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count records: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetSkip(int64(params.Offset)).
		SetLimit(int64(params.Limit))

	cursor, err := s.airdropsColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*models.AirdropRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, 0, fmt.Errorf("failed to decode records: %w", err)
	}

	return records, count, nil
}

func (s *MongoStore) FindByStatuses(ctx context.Context, statuses []models.Status) ([]*models.AirdropRecord, error) {
	cursor, err := s.airdropsColl.Find(ctx, bson.M{"status": bson.M{"$in": statuses}})
	if err != nil {
		return nil, fmt.Errorf("failed to query records by status: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*models.AirdropRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	return records, nil
}

// UpdateFields applies a narrow $set of the given fields and bumps
// updated_at.
func (s *MongoStore) UpdateFields(ctx context.Context, id primitive.ObjectID, fields map[string]interface{}) error {
	set := bson.M{"updated_at": time.Now()}
	for key, value := range fields {
		set[key] = value
	}

	_, err := s.airdropsColl.UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update record fields: %w", err)
	}
	return nil
}

// AppendSource appends a provenance entry. Sources are append-only; existing
// entries are never edited.
func (s *MongoStore) AppendSource(ctx context.Context, id primitive.ObjectID, source models.Source) error {
	_, err := s.airdropsColl.UpdateByID(ctx, id, bson.M{
		"$push": bson.M{"sources": source},
		"$set":  bson.M{"updated_at": time.Now()},
	})
	if err != nil {
		return fmt.Errorf("failed to append source: %w", err)
	}
	return nil
}

func auditEntry(action, from, to, actor string) models.VerificationEvent {
	return models.VerificationEvent{
		Timestamp: time.Now(),
		Actor:     actor,
		Action:    action,
		From:      from,
		To:        to,
	}
}

// SetStatus sets the status and appends the audit entry in one atomic update.
func (s *MongoStore) SetStatus(ctx context.Context, id primitive.ObjectID, from, to models.Status, actor string) error {
	_, err := s.airdropsColl.UpdateByID(ctx, id, bson.M{
		"$set":  bson.M{"status": to, "updated_at": time.Now()},
		"$push": bson.M{"metadata.verification_history": auditEntry("status_change", string(from), string(to), actor)},
	})
	if err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	return nil
}

// SetVerificationLevel sets the trust level and appends the audit entry.
func (s *MongoStore) SetVerificationLevel(ctx context.Context, id primitive.ObjectID, from, to models.VerificationLevel, actor string) error {
	_, err := s.airdropsColl.UpdateByID(ctx, id, bson.M{
		"$set":  bson.M{"verification_level": to, "updated_at": time.Now()},
		"$push": bson.M{"metadata.verification_history": auditEntry("level_change", string(from), string(to), actor)},
	})
	if err != nil {
		return fmt.Errorf("failed to set verification level: %w", err)
	}
	return nil
}

func (s *MongoStore) SetContractInfo(ctx context.Context, id primitive.ObjectID, info models.ContractInfo) error {
	return s.UpdateFields(ctx, id, map[string]interface{}{"contract_info": info})
}

// AddRiskWarning appends a warning, then derives the risk level from the
// post-append warning count and applies it with a second narrow $set. The
// level is a pure function of the count, never independently settable.
func (s *MongoStore) AddRiskWarning(ctx context.Context, id primitive.ObjectID, warning string) (*models.RiskAssessment, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated models.AirdropRecord
	err := s.airdropsColl.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{
		"$push": bson.M{"risks.warnings": warning},
		"$set":  bson.M{"updated_at": time.Now()},
	}, opts).Decode(&updated)
	if err != nil {
		return nil, fmt.Errorf("failed to append risk warning: %w", err)
	}

	risks := updated.Risks
	level := risks.Level
	switch {
	case len(risks.Warnings) >= 3:
		level = models.RiskHigh
	case len(risks.Warnings) == 2:
		level = models.RiskMedium
	}

	if level != risks.Level {
		if _, err := s.airdropsColl.UpdateByID(ctx, id, bson.M{
			"$set": bson.M{"risks.level": level},
		}); err != nil {
			return nil, fmt.Errorf("failed to set risk level: %w", err)
		}
		risks.Level = level
	}

	return &risks, nil
}

// IncrementViews bumps the monotonic view counter with an atomic $inc.
func (s *MongoStore) IncrementViews(ctx context.Context, id primitive.ObjectID) error {
	_, err := s.airdropsColl.UpdateByID(ctx, id, bson.M{
		"$inc": bson.M{"analytics.views": 1},
	})
	if err != nil {
		return fmt.Errorf("failed to increment views: %w", err)
	}
	return nil
}

// RecordClaim inserts the (wallet, airdrop) claim row and updates the
// record's claim counters and bounded top-claims list atomically.
// $push with $sort/$slice keeps the ranked list sorted and truncated server
// side.
func (s *MongoStore) RecordClaim(ctx context.Context, claim *models.UserClaim) error {
	claim.CreatedAt = time.Now()

	if _, err := s.claimsColl.InsertOne(ctx, claim); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyClaimed
		}
		return fmt.Errorf("failed to insert claim: %w", err)
	}

	update := bson.M{
		"$inc": bson.M{"analytics.claims": 1},
		"$set": bson.M{"updated_at": time.Now()},
	}
	if claim.Claimed {
		update["$inc"] = bson.M{
			"analytics.claims":            1,
			"analytics.successful_claims": 1,
		}
		update["$push"] = bson.M{
			"analytics.top_claims": bson.M{
				"$each": []models.TopClaim{{
					WalletAddress: claim.WalletAddress,
					Amount:        claim.Amount,
					TxHash:        claim.TxHash,
					ClaimedAt:     claim.ClaimedAt,
				}},
				"$sort":  bson.M{"amount": -1},
				"$slice": models.MaxTopClaims,
			},
		}
	}

	if _, err := s.airdropsColl.UpdateByID(ctx, claim.AirdropID, update); err != nil {
		return fmt.Errorf("failed to update claim analytics: %w", err)
	}

	return nil
}

// DeleteStale removes ended, unverified, low-engagement records older than
// the cutoff. The irrecoverable terminal state for noise.
func (s *MongoStore) DeleteStale(ctx context.Context, olderThan time.Time, maxViews int64) (int64, error) {
	result, err := s.airdropsColl.DeleteMany(ctx, bson.M{
		"status":             models.StatusEnded,
		"verification_level": models.LevelUnverified,
		"created_at":         bson.M{"$lt": olderThan},
		"analytics.views":    bson.M{"$lt": maxViews},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale records: %w", err)
	}
	return result.DeletedCount, nil
}

func (s *MongoStore) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	pipeline := []bson.M{
		{"$group": bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}},
		{"$sort": bson.M{"count": -1}},
	}

	cursor, err := s.airdropsColl.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by status: %w", err)
	}
	defer cursor.Close(ctx)

	var counts []models.StatusCount
	if err := cursor.All(ctx, &counts); err != nil {
		return nil, fmt.Errorf("failed to decode status counts: %w", err)
	}
	return counts, nil
}

func (s *MongoStore) CountByBlockchain(ctx context.Context) ([]models.ChainCount, error) {
	pipeline := []bson.M{
		{"$group": bson.M{"_id": "$blockchain", "count": bson.M{"$sum": 1}}},
		{"$sort": bson.M{"count": -1}},
	}

	cursor, err := s.airdropsColl.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by blockchain: %w", err)
	}
	defer cursor.Close(ctx)

	var counts []models.ChainCount
	if err := cursor.All(ctx, &counts); err != nil {
		return nil, fmt.Errorf("failed to decode blockchain counts: %w", err)
	}
	return counts, nil
}

func (s *MongoStore) SaveSyncResult(ctx context.Context, result *models.SyncResult) error {
	if _, err := s.syncColl.InsertOne(ctx, result); err != nil {
		return fmt.Errorf("failed to save sync result: %w", err)
	}
	return nil
}

func (s *MongoStore) LatestSyncResult(ctx context.Context) (*models.SyncResult, error) {
	var result models.SyncResult
	err := s.syncColl.FindOne(ctx, bson.M{}, options.FindOne().SetSort(bson.M{"finished_at": -1})).Decode(&result)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sync result: %w", err)
	}
	return &result, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
