package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adichat/backend/chat/repository"
	"adichat/backend/chat/service"
	"adichat/backend/completion"
	"adichat/backend/internal/ws"
	"adichat/backend/pkg/config"
	"adichat/backend/pkg/health"
	"adichat/backend/pkg/jwt"
	"adichat/backend/pkg/logger"
	"adichat/backend/pkg/resilience"
	"adichat/backend/pkg/secrets"
	"adichat/backend/shared/observability"
	"adichat/backend/shared/redis"

	"gorm.io/gorm"
)

// Container holds all the dependencies for the application
type Container struct {
	Config         *config.Config
	DB             *gorm.DB
	Logger         *logger.Logger
	Secrets        *secrets.VaultManager
	JWTService     *jwt.Service
	ChatRepository *repository.GormChatRepository
	ChatService    *service.ChatService
	Gateway        completion.Gateway
	Breaker        *resilience.Breaker
	Hub            *ws.Hub
	Redis          *redis.Client
	Telemetry      *observability.Telemetry
	Health         *health.Checker

	stopHub context.CancelFunc
}

// New wires the chat server around an open database
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, log *logger.Logger) (*Container, error) {
	vault, err := secrets.NewVaultManager(secrets.VaultConfig{
		Address: cfg.Vault.Address,
		Token:   cfg.Vault.Token,
		Mount:   cfg.Vault.Mount,
		Path:    cfg.Vault.Path,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create secrets manager: %w", err)
	}

	jwtSecret := vault.GetSecretWithDefault(ctx, secrets.KeyJWTSecret, cfg.JWT.Secret)
	apiKey := vault.GetSecretWithDefault(ctx, secrets.KeyGroqAPIKey, cfg.Completion.APIKey)
	if apiKey == "" {
		log.Warn("no completion API key configured, completions will fail")
	}

	repo := repository.NewGormChatRepository(db)
	if err := repo.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate chat schema: %w", err)
	}

	telemetry, err := observability.Setup(observability.Options{
		ServiceName: "adichat-server",
		TraceStdout: cfg.Observability.TraceStdout,
	})
	if err != nil {
		return nil, err
	}

	breaker := resilience.NewBreaker(resilience.Config{
		Name:      "completion",
		Threshold: uint(cfg.Completion.BreakerThreshold),
		Probes:    1,
		Cooldown:  cfg.Completion.BreakerCooldown,
	}, log)
	gateway := completion.WithBreaker(completion.NewClient(completion.Config{
		BaseURL: cfg.Completion.BaseURL,
		APIKey:  apiKey,
		Model:   cfg.Completion.Model,
		Timeout: cfg.Completion.Timeout,
	}, log), breaker)

	checker := health.NewChecker(log, 30*time.Second)
	checker.RegisterPingCheck("database", true, func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})
	checker.RegisterCheck("completion", false, func(context.Context) (health.Status, string, error) {
		switch breaker.State() {
		case resilience.StateOpen:
			return health.StatusDegraded, "completion circuit open", nil
		case resilience.StateHalfOpen:
			return health.StatusDegraded, "completion circuit probing", nil
		}
		return health.StatusUp, "completion circuit closed", nil
	})
	breaker.OnStateChange(func(from, to resilience.State) {
		go checker.RunChecks(context.Background())
	})

	var locker service.Locker = service.NewLocalLocker()
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = redis.NewClient(cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		locker = redis.NewChatLocker(redisClient, cfg.Redis.LockTTL)
		checker.RegisterPingCheck("redis", true, redisClient.Ping)
		log.Info("using redis chat locks", "ttl", cfg.Redis.LockTTL)
	}
	if vault.Enabled() {
		checker.RegisterPingCheck("vault", false, vault.Ping)
	}

	hub := ws.NewHub(log)
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	chatService := service.NewChatService(repo, gateway, service.Options{
		Locker:  locker,
		Events:  hub,
		Metrics: telemetry.Metrics,
		Logger:  log,
	})

	return &Container{
		Config:         cfg,
		DB:             db,
		Logger:         log,
		Secrets:        vault,
		JWTService:     jwt.NewService(jwtSecret, cfg.JWT.ExpiryHours),
		ChatRepository: repo,
		ChatService:    chatService,
		Gateway:        gateway,
		Breaker:        breaker,
		Hub:            hub,
		Redis:          redisClient,
		Telemetry:      telemetry,
		Health:         checker,
		stopHub:        stopHub,
	}, nil
}

// Close releases everything New started
func (c *Container) Close(ctx context.Context) error {
	c.stopHub()

	var errs []error
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	errs = append(errs, c.Telemetry.Shutdown(ctx))
	if sqlDB, err := c.DB.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	return errors.Join(errs...)
}
