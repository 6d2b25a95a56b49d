package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Logging   LoggingConfig
	Chains    ChainsConfig
	Sync      SyncConfig
	Monitor   MonitorConfig
	Probe     ProbeConfig
	Sources   SourcesConfig
	Streaming StreamingConfig
}

type ServerConfig struct {
	Port string
}

type MongoDBConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	URI     string
	Enabled bool
}

type LoggingConfig struct {
	Level      string
	ToFile     bool
	FilePath   string
	Format     string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type ChainsConfig struct {
	ConfigPath string // Path to chains YAML file
}

type SyncConfig struct {
	Interval          time.Duration
	AutoSync          bool
	RetentionAge      time.Duration
	RetentionMinViews int64
}

type MonitorConfig struct {
	Enabled              bool
	ReconnectBase        time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int
	EventBuffer          int

	// Mass-distribution heuristic knobs. The specific values are policy,
	// not correctness requirements.
	MassTransferThreshold   int
	MassTransferMaxSenders  int
	MassTransferBlockWindow uint64

	// Bounded prefix of block transactions inspected for contract creations.
	DeployScanTxLimit int
}

type ProbeConfig struct {
	BatchSize      int
	BatchPause     time.Duration
	CallTimeout    time.Duration
	ExplorerURL    string
	ExplorerAPIKey string
}

type SourcesConfig struct {
	AggregatorURL    string
	CommunityFeedURL string
	GitHubSearchURL  string
	GitHubToken      string
	FetchTimeout     time.Duration
}

type StreamingConfig struct {
	Enabled    bool
	Type       string // "ws" or "sse"
	Route      string
	BufferSize int
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env file is optional
	}

	cfg := &Config{}

	cfg.Server.Port = getEnv("SERVER_PORT", "8080")
	cfg.MongoDB.URI = getEnv("MONGODB_URI", "mongodb://localhost:27017")
	cfg.MongoDB.Database = getEnv("MONGODB_DB", "dropradar")

	cfg.Redis.URI = getEnv("REDIS_URI", "redis://localhost:6379")
	cfg.Redis.Enabled = getBool("USE_REDIS", true)

	cfg.Logging.Level = getEnv("LOG_LEVEL", "info")
	cfg.Logging.ToFile = getBool("LOG_TO_FILE", false)
	cfg.Logging.FilePath = getEnv("LOG_FILE_PATH", "logs/app.log")
	cfg.Logging.Format = getEnv("LOG_FORMAT", "text") // "text" or "json"
	cfg.Logging.MaxSizeMB = getInt("LOG_MAX_SIZE_MB", 100)
	cfg.Logging.MaxBackups = getInt("LOG_MAX_BACKUPS", 7)
	cfg.Logging.MaxAgeDays = getInt("LOG_MAX_AGE_DAYS", 30)

	cfg.Chains.ConfigPath = getEnv("CHAINS_CONFIG", "chains.yaml")

	syncInterval, err := getDurationSeconds("SYNC_INTERVAL_SECONDS", 6*60*60)
	if err != nil {
		return nil, err
	}
	cfg.Sync.Interval = syncInterval
	cfg.Sync.AutoSync = getBool("AUTO_SYNC", true)

	retentionDays := getInt("RETENTION_AGE_DAYS", 90)
	cfg.Sync.RetentionAge = time.Duration(retentionDays) * 24 * time.Hour
	cfg.Sync.RetentionMinViews = int64(getInt("RETENTION_MIN_VIEWS", 10))

	cfg.Monitor.Enabled = getBool("ENABLE_MONITOR", true)
	reconnectBase, err := getDurationSeconds("MONITOR_RECONNECT_BASE_SECONDS", 5)
	if err != nil {
		return nil, err
	}
	cfg.Monitor.ReconnectBase = reconnectBase

	reconnectMax, err := getDurationSeconds("MONITOR_RECONNECT_MAX_SECONDS", 300)
	if err != nil {
		return nil, err
	}
	cfg.Monitor.ReconnectMaxDelay = reconnectMax
	cfg.Monitor.MaxReconnectAttempts = getInt("MONITOR_MAX_RECONNECTS", 10)
	cfg.Monitor.EventBuffer = getInt("MONITOR_EVENT_BUFFER", 256)
	cfg.Monitor.MassTransferThreshold = getInt("MASS_TRANSFER_THRESHOLD", 10)
	cfg.Monitor.MassTransferMaxSenders = getInt("MASS_TRANSFER_MAX_SENDERS", 3)
	cfg.Monitor.MassTransferBlockWindow = uint64(getInt("MASS_TRANSFER_BLOCK_WINDOW", 20))
	cfg.Monitor.DeployScanTxLimit = getInt("DEPLOY_SCAN_TX_LIMIT", 20)

	cfg.Probe.BatchSize = getInt("PROBE_BATCH_SIZE", 5)
	probePause, err := getDurationSeconds("PROBE_BATCH_PAUSE_SECONDS", 1)
	if err != nil {
		return nil, err
	}
	cfg.Probe.BatchPause = probePause

	callTimeout, err := getDurationSeconds("PROBE_CALL_TIMEOUT_SECONDS", 10)
	if err != nil {
		return nil, err
	}
	cfg.Probe.CallTimeout = callTimeout
	cfg.Probe.ExplorerURL = getEnv("EXPLORER_API_URL", "")
	cfg.Probe.ExplorerAPIKey = getEnv("EXPLORER_API_KEY", "")

	cfg.Sources.AggregatorURL = getEnv("AGGREGATOR_API_URL", "")
	cfg.Sources.CommunityFeedURL = getEnv("COMMUNITY_FEED_URL", "")
	cfg.Sources.GitHubSearchURL = getEnv("GITHUB_SEARCH_URL", "https://api.github.com/search/repositories")
	cfg.Sources.GitHubToken = getEnv("GITHUB_TOKEN", "")
	fetchTimeout, err := getDurationSeconds("SOURCE_FETCH_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	cfg.Sources.FetchTimeout = fetchTimeout

	cfg.Streaming.Enabled = getBool("ENABLE_STREAM", false)
	cfg.Streaming.Type = getEnv("STREAM_TYPE", "ws") // "ws" or "sse"
	cfg.Streaming.Route = getEnv("STREAM_ROUTE", "/ws")
	cfg.Streaming.BufferSize = getInt("STREAM_BUFFER", 1024)

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1"
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getDurationSeconds(key string, defaultSeconds int) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return time.Duration(defaultSeconds) * time.Second, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(parsed) * time.Second, nil
}
