package bootstrap

import (
	"context"
	"fmt"
	"os"
	"strings"

	goredis "github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	config "github.com/avatarctic/cloud-storage-provider/configs"
	"github.com/avatarctic/cloud-storage-provider/internal/application/services"
	"github.com/avatarctic/cloud-storage-provider/internal/core/domain/health"
	"github.com/avatarctic/cloud-storage-provider/internal/core/ports"
	infrahealth "github.com/avatarctic/cloud-storage-provider/internal/infrastructure/health"
	"github.com/avatarctic/cloud-storage-provider/internal/infrastructure/redis"
	"github.com/avatarctic/cloud-storage-provider/internal/infrastructure/repositories"
	infrastorage "github.com/avatarctic/cloud-storage-provider/internal/infrastructure/storage"
	"github.com/avatarctic/cloud-storage-provider/internal/infrastructure/storage/azure"
)

// RedisCheckName is the health check registered for the cache backend.
const RedisCheckName = "cache:redis"

// NewLogger builds the process logger from the log settings.
func NewLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if strings.EqualFold(cfg.Format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(level)
	}
	return logger
}

// App holds the wired components shared by the server and the CLI.
type App struct {
	HealthService ports.HealthService
	Storage       *infrastorage.Registry
	// RateLimiter is nil unless Redis and RATE_LIMIT_RPM are configured.
	RateLimiter ports.RateLimiter
	Redis       *goredis.Client
}

// Close releases the Redis connection pool, if any.
func (a *App) Close() error {
	if a.Redis != nil {
		return a.Redis.Close()
	}
	return nil
}

// Build connects the optional Redis cache, registers every storage instance and their
// health checks. A configured but unreachable Redis fails the build.
func Build(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*App, error) {
	app := &App{HealthService: services.NewHealthService(logger)}

	opts := []infrastorage.RegistrarOption{infrastorage.WithProduction(cfg.IsProduction())}

	if cfg.Redis.Enabled() {
		client, err := redis.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, err
		}
		app.Redis = client
		logger.WithField("addr", cfg.Redis.RedisAddr()).Info("Connected to Redis successfully")

		evaluator, err := services.NewCachedEvaluator("cache_health:redis", infrahealth.NewRedisProbe(client),
			services.EvaluatorConfig{FreshDuration: cfg.Health.RedisCachedResultTimeout}, logger)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		if err := app.HealthService.Register(health.Registration{
			Name:          RedisCheckName,
			FailureStatus: health.StatusDegraded,
			Tags:          []string{"cache"},
		}, evaluator); err != nil {
			_ = app.Close()
			return nil, err
		}

		if cfg.MetadataCache.TTL > 0 {
			opts = append(opts, infrastorage.WithMetadataCache(
				redis.NewRedisCache(client, cfg.MetadataCache.KeyPrefix), cfg.MetadataCache.TTL))
		}

		if cfg.RateLimit.RequestsPerMinute > 0 {
			app.RateLimiter = services.NewRateLimiterService(repositories.NewRateLimitRedisRepository(client), &services.RateLimiterConfig{
				RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
				BurstMultiplier:   cfg.RateLimit.BurstMultiplier,
				Window:            cfg.RateLimit.Window,
				KeyPrefix:         cfg.RateLimit.KeyPrefix,
			}, logger)
		}
	} else {
		if cfg.MetadataCache.TTL > 0 {
			logger.Warn("METADATA_CACHE_TTL is set but Redis is not configured; metadata cache disabled")
		}
		if cfg.RateLimit.RequestsPerMinute > 0 {
			logger.Warn("RATE_LIMIT_RPM is set but Redis is not configured; rate limiting disabled")
		}
	}

	registry, err := infrastorage.NewRegistrar(azure.NewClientFromSettings, app.HealthService, logger, opts...).Register(&cfg.Storage)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("failed to register storage providers: %w", err)
	}
	app.Storage = registry
	return app, nil
}
