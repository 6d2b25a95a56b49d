package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dropradar/internal/cache"
	"dropradar/internal/chain"
	"dropradar/internal/config"
	"dropradar/internal/handler"
	"dropradar/internal/monitor"
	"dropradar/internal/probe"
	"dropradar/internal/service"
	"dropradar/internal/sources"
	"dropradar/internal/store"
	"dropradar/internal/stream"
	"dropradar/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(
		cfg.Logging.Level,
		cfg.Logging.ToFile,
		cfg.Logging.FilePath,
		cfg.Logging.Format,
		logger.Rotation{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		},
	)

	networks, err := config.LoadChainsFromYAML(cfg.Chains.ConfigPath)
	if err != nil {
		log.Error("Failed to load chains config: %v", err)
		os.Exit(1)
	}
	defer func() {
		for _, network := range networks {
			network.Close()
		}
	}()
	log.Info("Loaded %d blockchain networks", len(networks))

	// Redis is optional; the service degrades to store-only mode without it.
	var redisCache cache.Cache
	if cfg.Redis.Enabled {
		redisCache, err = cache.NewRedisCache(cfg.Redis.URI, true, log)
		if err != nil {
			log.Warn("Redis cache unavailable, continuing with MongoDB-only mode: %v", err)
			redisCache = nil
		} else {
			defer func() {
				if err := redisCache.Close(); err != nil {
					log.Error("Failed to close Redis cache: %v", err)
				}
			}()
		}
	}

	recordStore, err := store.NewMongoStore(cfg.MongoDB.URI, cfg.MongoDB.Database)
	if err != nil {
		log.Error("Failed to create record store: %v", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := recordStore.Close(ctx); err != nil {
			log.Error("Failed to close record store: %v", err)
		}
	}()

	readers := make(map[string]chain.Reader, len(networks))
	for _, network := range networks {
		readers[network.Name] = network.Pool
	}

	var verifier probe.SourceVerifier
	if cfg.Probe.ExplorerURL != "" {
		verifier = probe.NewExplorerClient(cfg.Probe.ExplorerURL, cfg.Probe.ExplorerAPIKey)
	}
	prober := probe.New(readers, verifier, log, cfg.Probe.BatchSize, cfg.Probe.BatchPause, cfg.Probe.CallTimeout)

	fetchers := []sources.Fetcher{
		sources.NewCurated(),
		sources.NewAggregator(cfg.Sources.AggregatorURL, cfg.Sources.FetchTimeout),
		sources.NewCommunity(cfg.Sources.CommunityFeedURL, cfg.Sources.FetchTimeout),
		sources.NewGitHub(cfg.Sources.GitHubSearchURL, cfg.Sources.GitHubToken, cfg.Sources.FetchTimeout),
	}

	var streamInstance *stream.Stream
	var notifier service.Notifier
	if cfg.Streaming.Enabled {
		streamInstance = stream.NewStream(cfg.Streaming.BufferSize, log)
		notifier = streamInstance
		log.Info("Streaming enabled: type=%s, route=%s", cfg.Streaming.Type, cfg.Streaming.Route)
	}

	reconciler := service.NewReconciler(recordStore, redisCache, prober, fetchers, notifier, cfg.Sync, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var chainMonitor *monitor.Monitor
	if cfg.Monitor.Enabled {
		var seen monitor.SeenCache
		if redisCache != nil {
			seen = redisCache
		}
		chainMonitor = monitor.New(networks, cfg.Monitor, seen, log)
		chainMonitor.Start(ctx)
		go reconciler.ConsumeEvents(ctx, chainMonitor.Events())
		log.Info("Event monitor started for %d networks", len(networks))
	}

	if cfg.Sync.AutoSync {
		go reconciler.RunPeriodic(ctx)
	}

	if streamInstance != nil {
		go streamInstance.StartBackgroundCleanup(ctx, 5*time.Minute)
	}

	airdropHandler := handler.NewAirdropHandler(recordStore, reconciler, log)

	var streamHandler *handler.StreamHandler
	if cfg.Streaming.Enabled && streamInstance != nil {
		streamHandler = handler.NewStreamHandler(streamInstance)
	}

	router := setupRouter(airdropHandler, streamHandler, cfg)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Info("Starting HTTP server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	cancel()
	if chainMonitor != nil {
		chainMonitor.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}

func setupRouter(airdropHandler *handler.AirdropHandler, streamHandler *handler.StreamHandler, cfg *config.Config) *gin.Engine {
	router := gin.Default()

	api := router.Group("/api/v1")
	{
		api.GET("/airdrops", airdropHandler.ListAirdrops)
		api.GET("/airdrops/:id", airdropHandler.GetAirdrop)
		api.POST("/airdrops/:id/claim", airdropHandler.RecordClaim)
		api.POST("/airdrops/:id/view", airdropHandler.RecordView)
		api.PUT("/airdrops/:id/verification", airdropHandler.SetVerificationLevel)
		api.POST("/airdrops/:id/warnings", airdropHandler.AddWarning)
		api.GET("/stats", airdropHandler.GetStats)
		api.POST("/sync", airdropHandler.TriggerSync)
		api.GET("/sync/status", airdropHandler.SyncStatus)
	}

	if cfg.Streaming.Enabled && streamHandler != nil {
		if cfg.Streaming.Type == "ws" {
			router.GET(cfg.Streaming.Route, streamHandler.HandleWebSocket)
		} else if cfg.Streaming.Type == "sse" {
			router.GET(cfg.Streaming.Route, streamHandler.HandleSSE)
		}
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	return router
}
