package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nexconsult/precatorios/internal/config"
	"github.com/nexconsult/precatorios/internal/export"
	"github.com/nexconsult/precatorios/internal/pipeline"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Container holds all service dependencies
type Container struct {
	config      *config.Config
	logger      *logrus.Logger
	redisClient *redis.Client
	stopCleanup context.CancelFunc

	CacheService     *CacheService
	ExtractorService *ExtractorService
	BrowserService   *BrowserService
	Lister           pipeline.PartitionLister
	Journal          *OutcomeJournal
	Exporters        []pipeline.Exporter
	Runner           *pipeline.Runner
	RunManager       *RunManager
}

// NewContainer creates a new service container
func NewContainer(cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	container := &Container{
		config: cfg,
		logger: logger,
	}

	container.initRedis()

	if err := container.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return container, nil
}

// initRedis connects to Redis. The container runs without it when it is
// disabled or unreachable.
func (c *Container) initRedis() {
	if !c.config.Redis.Enabled {
		c.logger.Info("Redis disabled, using in-memory cache and journal")
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", c.config.Redis.Host, c.config.Redis.Port),
		Password:     c.config.Redis.Password,
		DB:           c.config.Redis.DB,
		PoolSize:     c.config.Redis.PoolSize,
		DialTimeout:  c.config.Redis.DialTimeout,
		ReadTimeout:  c.config.Redis.ReadTimeout,
		WriteTimeout: c.config.Redis.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), c.config.Redis.DialTimeout+time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		c.logger.WithError(err).Warn("Redis connection failed, using in-memory cache and journal")
		_ = client.Close()
		return
	}

	c.redisClient = client
	c.logger.Info("Redis connection established")
}

// initServices initializes all services
func (c *Container) initServices() error {
	ext := c.config.Extraction
	timeouts := c.config.Timeouts()

	c.CacheService = NewCacheService(c.redisClient, ext.ListingCacheTTL, c.logger)
	cleanupCtx, stop := context.WithCancel(context.Background())
	c.stopCleanup = stop
	c.CacheService.StartCleanupRoutine(cleanupCtx, 5*time.Minute)

	c.ExtractorService = NewExtractorService(c.logger)
	c.BrowserService = NewBrowserService(c.config.Browser, c.config.Portal, c.ExtractorService, c.logger)

	var lister pipeline.PartitionLister
	if ext.PartitionsFile != "" {
		lister = NewFileLister(ext.PartitionsFile, c.logger)
	} else {
		lister = NewPortalLister(c.BrowserService, timeouts.ListingTimeout, c.logger)
	}
	if ext.ListingCacheTTL > 0 {
		lister = NewCachedLister(lister, c.CacheService, c.config.Journal.KeyPrefix, ext.ListingCacheTTL, c.logger)
	}
	c.Lister = lister

	c.Journal = NewOutcomeJournal(c.redisClient, c.config.Journal.KeyPrefix, c.config.Journal.TTL, c.logger)

	exporters, err := export.New(c.config.Export, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize exporters: %w", err)
	}
	c.Exporters = exporters

	c.RunManager = NewRunManager(c.logger)
	sink := pipeline.MultiSink{pipeline.NewLogSink(c.logger), c.RunManager}
	c.Runner = pipeline.NewRunner(c.Lister, c.BrowserService, c.Journal, sink, c.Exporters, pipeline.NewOptions(c.config), c.logger)
	c.RunManager.Bind(c.Runner)

	return nil
}

// Close stops the active run and closes all service connections
func (c *Container) Close() error {
	var errs []error

	if c.RunManager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeouts().ShutdownTimeout)
		if err := c.RunManager.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop active run: %w", err))
		}
		cancel()
	}

	if c.stopCleanup != nil {
		c.stopCleanup()
	}

	if c.BrowserService != nil {
		if err := c.BrowserService.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser service: %w", err))
		}
	}

	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Health checks the health of all services
func (c *Container) Health() map[string]interface{} {
	health := map[string]interface{}{
		"cache":   c.CacheService.Health(),
		"browser": c.BrowserService.Health(),
		"journal": c.Journal.Health(),
	}

	active, running := c.RunManager.Active()
	health["runs"] = map[string]interface{}{
		"active":  running,
		"run_id":  active,
		"tracked": len(c.RunManager.List()),
	}

	return health
}

// GetRedisClient returns the Redis client, nil when running without Redis
func (c *Container) GetRedisClient() *redis.Client {
	return c.redisClient
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logrus.Logger {
	return c.logger
}
