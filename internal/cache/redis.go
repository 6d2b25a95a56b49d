package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dropradar/internal/models"
	"dropradar/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// Cache provides fast look-aside state shared across instances: dedupe of
// contracts the monitor already flagged, and the last sync result snapshot.
type Cache interface {
	IsContractSeen(ctx context.Context, blockchain, address string) (bool, error)
	MarkContractSeen(ctx context.Context, blockchain, address string) error
	GetLastSyncResult(ctx context.Context) (*models.SyncResult, error)
	SetLastSyncResult(ctx context.Context, result *models.SyncResult) error
	Close() error
}

// RedisCache implements Cache using Redis
type RedisCache struct {
	client  *redis.Client
	logger  *logger.Logger
	enabled bool
}

// NewRedisCache creates a new Redis cache instance
// If Redis is unavailable, the caller degrades to store-only mode
func NewRedisCache(uri string, enabled bool, log *logger.Logger) (*RedisCache, error) {
	if !enabled {
		log.Info("Redis cache disabled, using store-only mode")
		return &RedisCache{enabled: false, logger: log}, nil
	}

	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URI: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("Redis cache connected successfully")

	return &RedisCache{
		client:  client,
		logger:  log,
		enabled: true,
	}, nil
}

const (
	keySeenPrefix = "dropradar:seen:"
	keyLastSync   = "dropradar:last_sync"

	// Seen-contract entries expire so a quiet contract that starts
	// distributing again gets re-probed eventually.
	seenContractTTL = 24 * time.Hour
)

// IsContractSeen reports whether the monitor already emitted an event for
// this contract recently. Keeps transfer bursts from re-probing every log.
func (r *RedisCache) IsContractSeen(ctx context.Context, blockchain, address string) (bool, error) {
	if !r.enabled {
		return false, ErrCacheDisabled
	}

	key := keySeenPrefix + blockchain + ":" + models.NormalizeAddress(address)
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check seen contract in Redis: %w", err)
	}

	return exists > 0, nil
}

// MarkContractSeen records a contract as recently handled, with TTL.
func (r *RedisCache) MarkContractSeen(ctx context.Context, blockchain, address string) error {
	if !r.enabled {
		return ErrCacheDisabled
	}

	key := keySeenPrefix + blockchain + ":" + models.NormalizeAddress(address)
	if err := r.client.Set(ctx, key, "1", seenContractTTL).Err(); err != nil {
		return fmt.Errorf("failed to mark contract seen in Redis: %w", err)
	}

	return nil
}

// GetLastSyncResult retrieves the last sync result snapshot.
// Returns nil with no error if no sync has run yet.
func (r *RedisCache) GetLastSyncResult(ctx context.Context) (*models.SyncResult, error) {
	if !r.enabled {
		return nil, ErrCacheDisabled
	}

	data, err := r.client.Get(ctx, keyLastSync).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last sync result from Redis: %w", err)
	}

	var result models.SyncResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("invalid sync result in cache: %w", err)
	}

	return &result, nil
}

// SetLastSyncResult stores the last sync result snapshot.
func (r *RedisCache) SetLastSyncResult(ctx context.Context, result *models.SyncResult) error {
	if !r.enabled {
		return ErrCacheDisabled
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal sync result: %w", err)
	}

	if err := r.client.Set(ctx, keyLastSync, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set last sync result in Redis: %w", err)
	}

	return nil
}

// Close closes the Redis connection gracefully
func (r *RedisCache) Close() error {
	if !r.enabled || r.client == nil {
		return nil
	}

	return r.client.Close()
}

// ErrCacheDisabled is returned when cache operations are attempted but Redis is disabled
var ErrCacheDisabled = fmt.Errorf("cache disabled")
