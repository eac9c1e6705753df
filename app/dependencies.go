package app

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/token-auth-api/config"
	"github.com/upb/token-auth-api/internal/observability"
	"github.com/upb/token-auth-api/internal/policy"
	"github.com/upb/token-auth-api/middleware"
	"github.com/upb/token-auth-api/models"
	"github.com/upb/token-auth-api/repositories"
	"github.com/upb/token-auth-api/repositories/memory"
	"github.com/upb/token-auth-api/repositories/postgres"
	redisrepo "github.com/upb/token-auth-api/repositories/redis"
	"github.com/upb/token-auth-api/services"
	"github.com/upb/token-auth-api/services/audit"
	"github.com/upb/token-auth-api/token"
	"go.uber.org/zap"
)

// auditStopTimeout bounds how long shutdown waits for queued security events
const auditStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Repository Factory, nil when users are kept in memory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users     repositories.UserRepository
	AuditLogs repositories.AuditRepository
	TxManager repositories.TransactionManager

	// Token revocations, shared through Redis when configured
	Revocations token.RevocationStore
	RedisStore  *redisrepo.RevocationStore

	// Services
	Tokens       *token.Service
	Hasher       services.PasswordHasher
	Credentials  *services.CredentialValidator
	AuthService  *services.AuthService
	UserService  *services.UserService
	AuditService *audit.AuditService

	// Authorization
	Policies        policy.Table
	AuthMiddleware  *middleware.AuthMiddleware
	AuthzMiddleware *middleware.AuthzMiddleware
}

// seedUser is a development account created at startup
type seedUser struct {
	username    string
	email       string
	password    string
	firstName   string
	lastName    string
	authorities []models.Authority
}

var developmentUsers = []seedUser{
	{"admin", "admin@example.com", "password", "John", "Doe", []models.Authority{models.AuthorityAdmin, models.AuthorityUser}},
	{"user", "user@example.com", "password", "Jane", "Doe", []models.Authority{models.AuthorityUser}},
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:   cfg,
		Logger:   logger,
		Metrics:  observability.NewMetrics(),
		Policies: policy.DefaultTable(),
	}

	// Initialize user storage
	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize revocation store
	if err := deps.initRevocations(ctx, cfg); err != nil {
		deps.closeStores()
		return nil, fmt.Errorf("failed to initialize revocation store: %w", err)
	}

	// Initialize services
	if err := deps.initServices(cfg); err != nil {
		deps.closeStores()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	deps.initMiddleware(cfg)

	if cfg.Auth.SeedUsers {
		if err := deps.seedUsers(ctx); err != nil {
			_ = deps.Close(ctx)
			return nil, fmt.Errorf("failed to seed users: %w", err)
		}
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes PostgreSQL when configured, otherwise an in-memory user store
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if cfg.Database == nil {
		d.Users = memory.NewUserRepository()
		d.Logger.Warn("no database configured, users are kept in memory and security events are only logged")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(*cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	// Test the connection
	if err := d.DB.PingContext(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("database ping failed: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := d.DB.InitSchema(ctx); err != nil {
			_ = factory.Close()
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	repos := factory.NewRepositories()
	d.Users = repos.Users
	d.AuditLogs = repos.AuditLogs
	d.TxManager = factory.GetTransactionManager()

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))

	return nil
}

// initRevocations connects to Redis when configured, otherwise keeps revocations in memory
func (d *Dependencies) initRevocations(ctx context.Context, cfg *config.Config) error {
	if cfg.Redis.URL == "" {
		d.Revocations = token.NewMemoryRevocations()
		d.Logger.Info("using in-memory token revocations")
		return nil
	}

	store, err := redisrepo.NewFromURL(cfg.Redis.URL, cfg.Redis.KeyPrefix)
	if err != nil {
		return err
	}
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	d.RedisStore = store
	d.Revocations = store
	d.Logger.Info("using redis token revocations")
	return nil
}

// initServices builds the token, credential, user and audit services
func (d *Dependencies) initServices(cfg *config.Config) error {
	if cfg.Token.SecretGenerated {
		d.Logger.Warn("JWT_SECRET not set, using a random secret; tokens will not survive a restart")
	}

	tokens, err := token.NewService(token.Config{
		Secret:       cfg.Token.Secret,
		Issuer:       cfg.Token.Issuer,
		Audience:     cfg.Token.Audience,
		TTL:          cfg.Token.TTL,
		RefreshLimit: cfg.Token.RefreshLimit,
		ClockSkew:    cfg.Token.ClockSkew,
	}, token.WithRevocations(d.Revocations))
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}
	d.Tokens = tokens

	d.AuditService = audit.NewAuditService(d.AuditLogs, d.Logger, audit.Config{
		BufferSize:   cfg.Audit.BufferSize,
		WorkerCount:  cfg.Audit.WorkerCount,
		WriteTimeout: cfg.Audit.WriteTimeout,
	})
	if err := d.AuditService.Start(); err != nil {
		return fmt.Errorf("failed to start audit service: %w", err)
	}

	d.Hasher = services.NewBcryptHasher(cfg.Auth.BcryptCost)

	credentials, err := services.NewCredentialValidator(d.Users, d.Hasher, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create credential validator: %w", err)
	}
	d.Credentials = credentials

	d.AuthService = services.NewAuthService(credentials, tokens, d.AuditService, d.Metrics, d.Logger)
	d.UserService = services.NewUserService(d.Users, d.Hasher, d.Logger)

	d.Logger.Info("services initialized",
		zap.Duration("token_ttl", tokens.TTL()),
		zap.Int("refresh_limit", cfg.Token.RefreshLimit))
	return nil
}

func (d *Dependencies) initMiddleware(cfg *config.Config) {
	d.AuthMiddleware = middleware.NewAuthMiddleware(
		d.Tokens,
		d.Users,
		d.AuditService,
		d.Metrics,
		cfg.Server.TrustProxyHeaders,
		d.Logger,
	)
	d.AuthzMiddleware = middleware.NewAuthzMiddleware(d.Policies, d.AuditService, d.Metrics, d.Logger)
}

// seedUsers creates the development accounts unless they already exist
func (d *Dependencies) seedUsers(ctx context.Context) error {
	for _, seed := range developmentUsers {
		_, err := d.UserService.CreateUser(ctx, services.CreateUserInput{
			Username:    seed.username,
			Email:       seed.email,
			Password:    seed.password,
			FirstName:   seed.firstName,
			LastName:    seed.lastName,
			Authorities: seed.authorities,
		})
		if err != nil {
			if services.IsConflictError(err) {
				continue
			}
			return err
		}
		d.Logger.Warn("seeded development user", zap.String("username", seed.username))
	}
	return nil
}

// closeStores releases connections opened before a failed initialization
func (d *Dependencies) closeStores() {
	if d.RedisStore != nil {
		_ = d.RedisStore.Close()
	}
	if d.RepoFactory != nil {
		_ = d.RepoFactory.Close()
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Flush queued security events before the database goes away
	if d.AuditService != nil {
		if err := d.AuditService.Stop(auditStopTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.RedisStore != nil {
		if err := d.RedisStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
