// Package main provides the API server entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/planiversary/planiversary/internal/config"
	httphandler "github.com/planiversary/planiversary/internal/handler/http"
	"github.com/planiversary/planiversary/internal/infrastructure/auth"
	"github.com/planiversary/planiversary/internal/infrastructure/httpserver"
	"github.com/planiversary/planiversary/internal/infrastructure/metrics"
	mongodbinfra "github.com/planiversary/planiversary/internal/infrastructure/mongodb"
	"github.com/planiversary/planiversary/internal/infrastructure/repository/mongodb"
	"github.com/planiversary/planiversary/internal/middleware"
	"github.com/planiversary/planiversary/internal/service"
)

// Container initialization timeouts.
const (
	containerInitTimeout   = 30 * time.Second
	redisPingTimeout       = 5 * time.Second
	mongoDisconnectTimeout = 10 * time.Second
)

// Container holds all application dependencies and manages their lifecycle.
// It implements httpserver.HealthChecker for unified health endpoint support.
type Container struct {
	// Configuration
	Config *config.Config
	Logger *slog.Logger

	// Infrastructure
	MongoDB     *mongo.Client
	MongoDBName string
	Redis       *redis.Client

	// Auth components
	Hasher       *auth.PasswordHasher
	Codec        *auth.TokenCodec
	SessionStore *auth.SessionStore
	AccountRepo  *mongodb.MongoAccountRepository

	// Services
	AuthService *service.AuthService

	// Observability
	AuthMetrics *metrics.AuthMetrics

	// Middleware
	AuthMiddleware *middleware.AuthMiddleware

	// HTTP handlers
	AuthHandler *httphandler.AuthHandler
}

// Ensure Container implements httpserver.HealthChecker.
var _ httpserver.HealthChecker = (*Container)(nil)

// ContainerOption configures the Container.
type ContainerOption func(*Container)

// WithLogger sets a custom logger for the container.
func WithLogger(logger *slog.Logger) ContainerOption {
	return func(c *Container) {
		c.Logger = logger
	}
}

// NewContainer creates a new dependency injection container.
func NewContainer(cfg *config.Config, opts ...ContainerOption) (*Container, error) {
	c := &Container{
		Config: cfg,
		Logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.setupInfrastructure(); err != nil {
		// Clean up any partially initialized resources
		_ = c.Close()
		return nil, fmt.Errorf("failed to setup infrastructure: %w", err)
	}

	c.AuthMetrics = metrics.NewAuthMetrics(prometheus.DefaultRegisterer)

	c.setupAuthComponents()
	c.setupMiddleware()
	c.setupHTTPHandlers()

	if err := c.validateWiring(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("wiring validation failed: %w", err)
	}

	return c, nil
}

// validateWiring ensures all required dependencies are properly initialized.
func (c *Container) validateWiring() error {
	var errs []error

	if c.MongoDB == nil {
		errs = append(errs, errors.New("mongodb client not initialized"))
	}
	if c.Redis == nil {
		errs = append(errs, errors.New("redis client not initialized"))
	}
	if c.SessionStore == nil {
		errs = append(errs, errors.New("session store not initialized"))
	}
	if c.AuthService == nil {
		errs = append(errs, errors.New("auth service not initialized"))
	}
	if c.AuthMiddleware == nil {
		errs = append(errs, errors.New("auth middleware not initialized"))
	}
	if c.AuthHandler == nil {
		errs = append(errs, errors.New("auth handler not initialized"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// setupInfrastructure initializes MongoDB and Redis connections.
func (c *Container) setupInfrastructure() error {
	ctx, cancel := context.WithTimeout(context.Background(), containerInitTimeout)
	defer cancel()

	if err := c.setupMongoDB(ctx); err != nil {
		return fmt.Errorf("mongodb: %w", err)
	}

	if err := c.setupRedis(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	return nil
}

// setupMongoDB initializes the MongoDB client.
func (c *Container) setupMongoDB(ctx context.Context) error {
	clientOpts := options.Client().
		ApplyURI(c.Config.MongoDB.URI).
		SetMaxPoolSize(c.Config.MongoDB.MaxPoolSize)

	client, connectErr := mongo.Connect(clientOpts)
	if connectErr != nil {
		return fmt.Errorf("failed to connect: %w", connectErr)
	}

	// Verify connection
	pingCtx, cancel := context.WithTimeout(ctx, c.Config.MongoDB.Timeout)
	defer cancel()

	if pingErr := client.Ping(pingCtx, nil); pingErr != nil {
		return fmt.Errorf("failed to ping: %w", pingErr)
	}

	c.MongoDB = client
	c.MongoDBName = c.Config.MongoDB.Database

	c.Logger.InfoContext(ctx, "connected to MongoDB",
		slog.String("database", c.Config.MongoDB.Database),
	)

	// Create all necessary indexes
	db := client.Database(c.Config.MongoDB.Database)
	indexCtx, indexCancel := context.WithTimeout(ctx, c.Config.MongoDB.Timeout)
	defer indexCancel()

	if indexErr := mongodbinfra.CreateAllIndexes(indexCtx, db); indexErr != nil {
		return fmt.Errorf("failed to create indexes: %w", indexErr)
	}

	c.Logger.InfoContext(ctx, "MongoDB indexes created successfully")

	return nil
}

// setupRedis initializes the Redis client.
func (c *Container) setupRedis(ctx context.Context) error {
	c.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Addr,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
		PoolSize: c.Config.Redis.PoolSize,
	})

	// Verify connection
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if pingErr := c.Redis.Ping(pingCtx).Err(); pingErr != nil {
		return fmt.Errorf("failed to ping: %w", pingErr)
	}

	c.Logger.InfoContext(ctx, "connected to Redis",
		slog.String("addr", c.Config.Redis.Addr),
	)

	return nil
}

// setupAuthComponents wires the hasher, token codec, session store,
// account repository and the auth service.
func (c *Container) setupAuthComponents() {
	authCfg := c.Config.Auth

	c.Hasher = auth.NewPasswordHasher(auth.PasswordHasherConfig{
		Cost: authCfg.BcryptCost,
	})

	c.Codec = auth.NewTokenCodec(auth.TokenCodecConfig{
		Secret: authCfg.JWTSecret,
		Issuer: authCfg.Issuer,
	})

	c.SessionStore = auth.NewSessionStore(auth.SessionStoreConfig{
		Client:       c.Redis,
		SessionLimit: authCfg.SessionLimit,
	})

	accounts := c.MongoDB.
		Database(c.MongoDBName).
		Collection(mongodbinfra.CollectionAccounts)
	c.AccountRepo = mongodb.NewMongoAccountRepository(accounts,
		mongodb.WithAccountRepoLogger(c.Logger))

	c.AuthService = service.NewAuthService(service.AuthServiceConfig{
		Accounts:             c.AccountRepo,
		Sessions:             c.SessionStore,
		Codec:                c.Codec,
		Hasher:               c.Hasher,
		Logger:               c.Logger,
		AccessTokenTTL:       authCfg.AccessTokenTTL,
		RefreshTokenTTL:      authCfg.RefreshTokenTTL,
		VerificationTokenTTL: authCfg.VerificationTokenTTL,
		ResetTokenTTL:        authCfg.ResetTokenTTL,
		RotateRefreshTokens:  authCfg.RotateRefreshTokens,
	})

	c.Logger.Debug("auth components initialized")
}

// setupMiddleware wires the authentication middleware.
func (c *Container) setupMiddleware() {
	c.AuthMiddleware = middleware.NewAuthMiddleware(middleware.AuthMiddlewareConfig{
		Codec:      c.Codec,
		Blacklist:  c.SessionStore,
		Accounts:   c.AccountRepo,
		Logger:     c.Logger,
		CookieName: c.Config.Auth.AccessTokenCookie,
		Metrics:    c.AuthMetrics,
	})
}

// setupHTTPHandlers wires the HTTP handlers.
func (c *Container) setupHTTPHandlers() {
	c.AuthHandler = httphandler.NewAuthHandler(httphandler.AuthHandlerConfig{
		Service:        c.AuthService,
		Logger:         c.Logger,
		AccessTokenTTL: c.Config.Auth.AccessTokenTTL,
		CookieName:     c.Config.Auth.AccessTokenCookie,
		LoginLimiter:   middleware.LoginRateLimit(c.SessionStore, c.Logger),
		Metrics:        c.AuthMetrics,
	})
}

// Close releases all container resources.
func (c *Container) Close() error {
	c.Logger.Info("closing container resources...")

	var errs []error

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		} else {
			c.Logger.Debug("redis connection closed")
		}
	}

	if c.MongoDB != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
		defer cancel()

		if err := c.MongoDB.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongodb disconnect: %w", err))
		} else {
			c.Logger.Debug("mongodb connection closed")
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	c.Logger.Info("all container resources closed")
	return nil
}

// IsReady implements httpserver.HealthChecker.
func (c *Container) IsReady(ctx context.Context) bool {
	if c.MongoDB == nil {
		return false
	}
	if err := c.MongoDB.Ping(ctx, nil); err != nil {
		c.Logger.WarnContext(ctx, "mongodb health check failed", slog.String("error", err.Error()))
		return false
	}

	if c.Redis == nil {
		return false
	}
	if err := c.Redis.Ping(ctx).Err(); err != nil {
		c.Logger.WarnContext(ctx, "redis health check failed", slog.String("error", err.Error()))
		return false
	}

	return true
}

// GetHealthStatus implements httpserver.HealthChecker.
func (c *Container) GetHealthStatus(ctx context.Context) []httpserver.ComponentStatus {
	var statuses []httpserver.ComponentStatus

	mongoStatus := httpserver.ComponentStatus{Name: "mongodb", Status: httpserver.StatusHealthy}
	if c.MongoDB == nil {
		mongoStatus.Status = httpserver.StatusUnhealthy
		mongoStatus.Message = "client not initialized"
	} else if err := c.MongoDB.Ping(ctx, nil); err != nil {
		mongoStatus.Status = httpserver.StatusUnhealthy
		mongoStatus.Message = err.Error()
	}
	statuses = append(statuses, mongoStatus)

	redisStatus := httpserver.ComponentStatus{Name: "redis", Status: httpserver.StatusHealthy}
	if c.Redis == nil {
		redisStatus.Status = httpserver.StatusUnhealthy
		redisStatus.Message = "client not initialized"
	} else if err := c.Redis.Ping(ctx).Err(); err != nil {
		redisStatus.Status = httpserver.StatusUnhealthy
		redisStatus.Message = err.Error()
	}
	statuses = append(statuses, redisStatus)

	return statuses
}
