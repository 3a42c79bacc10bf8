package di

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/config"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/health"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/http/handler"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/http/router"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/observability"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/repository"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/security"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/service"

	"github.com/redis/go-redis/v9"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"
)

// TicketPepper keys the digests stored for login tickets and refresh tokens.
type TicketPepper []byte

// AdminTools is the subset of the graph used by offline commands.
type AdminTools struct {
	DB       *gorm.DB
	Redis    redis.UniversalClient
	Bindings *service.RoleBindingService
}

func provideObservability(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, cfg, logger, lp)
}

func provideDatabase(cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	db, err := repository.OpenDatabase(cfg.DBDriver, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if cfg.DBAutoMigrate {
		if err := repository.Migrate(db); err != nil {
			return nil, err
		}
		logger.Info("database migrated", "driver", cfg.DBDriver)
	}
	return db, nil
}

func provideRedis(cfg *config.Config) redis.UniversalClient {
	if !cfg.RedisEnabled() {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.TicketSecret)
}

func providePayloadCodec(cfg *config.Config) (*security.PayloadCodec, error) {
	return security.NewPayloadCodec(cfg.QRPayloadSecret)
}

func provideTicketPepper(cfg *config.Config) (TicketPepper, error) {
	key, err := security.DeriveKey(cfg.TicketSecret, "ticket-hash", 32)
	if err != nil {
		return nil, err
	}
	return TicketPepper(key), nil
}

func provideAuditor(cfg *config.Config, logger *slog.Logger, redisClient redis.UniversalClient) *service.Auditor {
	sinks := service.MultiAuditSink{service.NewSlogAuditSink(logger)}
	if redisClient != nil {
		sinks = append(sinks, service.NewRedisStreamAuditSink(redisClient, cfg.RedisPrefix+":"+cfg.AuditStream, cfg.AuditStreamMaxLen))
	}
	return service.NewAuditor(sinks, logger, nil)
}

func provideRoleResolver(cfg *config.Config, store repository.Store, redisClient redis.UniversalClient, logger *slog.Logger) *service.RoleResolver {
	var cache service.RoleCacheStore = service.NewNoopRoleCacheStore()
	switch {
	case cfg.RoleCacheTTL <= 0:
	case redisClient != nil:
		cache = service.NewRedisRoleCacheStore(redisClient, cfg.RedisPrefix)
	default:
		cache = service.NewInMemoryRoleCacheStore()
	}
	return service.NewRoleResolver(store, cache, cfg.RoleCacheTTL, logger)
}

func provideNegativeLookupCache(cfg *config.Config, redisClient redis.UniversalClient) service.NegativeLookupCacheStore {
	switch {
	case cfg.NegativeLookupTTL <= 0:
		return service.NewNoopNegativeLookupCacheStore()
	case redisClient != nil:
		return service.NewRedisNegativeLookupCacheStore(redisClient, cfg.RedisPrefix)
	default:
		return service.NewInMemoryNegativeLookupCacheStore()
	}
}

func provideImageRenderer(cfg *config.Config) service.ImageRenderer {
	if cfg.ImageRendererURL == "" {
		return service.UnavailableImageRenderer{}
	}
	return service.NewHTTPImageRenderer(cfg.ImageRendererURL, cfg.ImageRendererTimeout)
}

func provideTicketIssuer(cfg *config.Config, jwtMgr *security.JWTManager, store repository.Store, pepper TicketPepper, auditor *service.Auditor) *service.TicketIssuer {
	return service.NewTicketIssuer(jwtMgr, store, pepper, cfg.LoginTicketTTL, cfg.RefreshTokenTTL, nil, auditor)
}

func provideQRBroker(cfg *config.Config, store repository.Store, codec *security.PayloadCodec, auditor *service.Auditor, logger *slog.Logger) *service.QRBroker {
	return service.NewQRBroker(store, codec, cfg.QRSessionTTL, nil, auditor, logger)
}

func provideApprovalHandshake(store repository.Store, codec *security.PayloadCodec, rbac *service.RoleResolver, issuer *service.TicketIssuer, auditor *service.Auditor) *service.ApprovalHandshake {
	return service.NewApprovalHandshake(store, codec, rbac, issuer, nil, auditor)
}

func provideInviteRegistry(cfg *config.Config, store repository.Store, rbac *service.RoleResolver, negCache service.NegativeLookupCacheStore, renderer service.ImageRenderer, auditor *service.Auditor, logger *slog.Logger) *service.InviteRegistry {
	return service.NewInviteRegistry(store, rbac, negCache, renderer, service.InviteRegistryConfig{
		ShareBase:         cfg.InviteShareBase,
		MaxCodeAttempts:   cfg.InviteCodeMaxAttempts,
		NegativeLookupTTL: cfg.NegativeLookupTTL,
	}, nil, auditor, logger)
}

func provideRoleBindingService(store repository.Store, rbac *service.RoleResolver, auditor *service.Auditor) *service.RoleBindingService {
	return service.NewRoleBindingService(store, rbac, nil, auditor)
}

func provideReadiness(db *gorm.DB, redisClient redis.UniversalClient) *health.ProbeRunner {
	checkers := []health.Checker{health.NewDBChecker(db)}
	if redisClient != nil {
		checkers = append(checkers, health.NewRedisChecker(redisClient))
	}
	return health.NewProbeRunner(2*time.Second, time.Second, checkers...)
}

func provideRouter(
	cfg *config.Config,
	logger *slog.Logger,
	jwtMgr *security.JWTManager,
	qr *handler.QRHandler,
	invites *handler.InviteHandler,
	bindings *handler.RoleBindingHandler,
	users *handler.UserHandler,
	readiness *health.ProbeRunner,
) http.Handler {
	return router.NewRouter(router.Dependencies{
		QRHandler:          qr,
		InviteHandler:      invites,
		RoleBindingHandler: bindings,
		UserHandler:        users,
		JWTManager:         jwtMgr,
		Logger:             logger,
		APIRateLimitRPM:    cfg.APIRateLimitRPM,
		QRRateLimitRPM:     cfg.QRRateLimitRPM,
		RedeemRateLimitRPM: cfg.RedeemRateLimitRPM,
		Readiness:          readiness,
		EnableOTelHTTP:     cfg.OTELTracingEnabled || cfg.OTELMetricsEnabled,
	})
}

func provideHTTPServer(cfg *config.Config, h http.Handler, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
}

func provideAdminTools(db *gorm.DB, redisClient redis.UniversalClient, bindings *service.RoleBindingService) *AdminTools {
	return &AdminTools{DB: db, Redis: redisClient, Bindings: bindings}
}

func closeDatabase(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database handle: %w", err)
	}
	return sqlDB.Close()
}

// Close releases the stores held by the admin tools.
func (t *AdminTools) Close() error {
	var errs []error
	if t.Redis != nil {
		if err := t.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if err := closeDatabase(t.DB); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
