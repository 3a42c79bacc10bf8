package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DBDriver      string `env:"DB_DRIVER" envDefault:"sqlite"`
	DatabaseURL   string `env:"DATABASE_URL" envDefault:"file:qrauth.db?_busy_timeout=5000"`
	DBAutoMigrate bool   `env:"DB_AUTO_MIGRATE" envDefault:"true"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"qrauth"`

	JWTIssuer        string `env:"JWT_ISSUER" envDefault:"secure-qr-auth-service"`
	JWTAudience      string `env:"JWT_AUDIENCE" envDefault:"console"`
	JWTAccessSecret  string `env:"JWT_ACCESS_SECRET" envDefault:"dev-access-secret-change-me-0000000"`
	JWTRefreshSecret string `env:"JWT_REFRESH_SECRET" envDefault:"dev-refresh-secret-change-me-000000"`
	TicketSecret     string `env:"TICKET_SECRET" envDefault:"dev-ticket-secret-change-me-0000000"`
	QRPayloadSecret  string `env:"QR_PAYLOAD_SECRET" envDefault:"dev-qr-payload-secret-change-me-000"`

	QRSessionTTL    time.Duration `env:"QR_SESSION_TTL" envDefault:"90s"`
	LoginTicketTTL  time.Duration `env:"LOGIN_TICKET_TTL" envDefault:"2m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`

	InviteShareBase       string `env:"INVITE_SHARE_BASE" envDefault:"/join"`
	InviteCodeMaxAttempts int    `env:"INVITE_CODE_MAX_ATTEMPTS" envDefault:"5"`

	RoleCacheTTL      time.Duration `env:"ROLE_CACHE_TTL" envDefault:"0s"`
	NegativeLookupTTL time.Duration `env:"NEGATIVE_LOOKUP_TTL" envDefault:"30s"`
	AuditStream       string        `env:"AUDIT_STREAM" envDefault:"audit"`
	AuditStreamMaxLen int64         `env:"AUDIT_STREAM_MAX_LEN" envDefault:"100000"`

	ImageRendererURL     string        `env:"IMAGE_RENDERER_URL"`
	ImageRendererTimeout time.Duration `env:"IMAGE_RENDERER_TIMEOUT" envDefault:"5s"`

	APIRateLimitRPM    int `env:"RATE_LIMIT_API_RPM" envDefault:"600"`
	QRRateLimitRPM     int `env:"RATE_LIMIT_QR_RPM" envDefault:"120"`
	RedeemRateLimitRPM int `env:"RATE_LIMIT_REDEEM_RPM" envDefault:"20"`

	OTELServiceName           string        `env:"OTEL_SERVICE_NAME" envDefault:"secure-qr-auth-service"`
	OTELEnvironment           string        `env:"OTEL_ENVIRONMENT" envDefault:"development"`
	OTELExporterOTLPEndpoint  string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTELExporterOTLPInsecure  bool          `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	OTELMetricsEnabled        bool          `env:"OTEL_METRICS_ENABLED" envDefault:"false"`
	OTELTracingEnabled        bool          `env:"OTEL_TRACING_ENABLED" envDefault:"false"`
	OTELLogsEnabled           bool          `env:"OTEL_LOGS_ENABLED" envDefault:"false"`
	OTELMetricsExportInterval time.Duration `env:"OTEL_METRICS_EXPORT_INTERVAL" envDefault:"15s"`
	OTELTraceSamplingRatio    float64       `env:"OTEL_TRACE_SAMPLING_RATIO" envDefault:"1.0"`

	ShutdownTimeout              time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"20s"`
	ShutdownHTTPDrainTimeout     time.Duration `env:"SHUTDOWN_HTTP_DRAIN_TIMEOUT" envDefault:"10s"`
	ShutdownObservabilityTimeout time.Duration `env:"SHUTDOWN_OBSERVABILITY_TIMEOUT" envDefault:"5s"`
}

const minSecretLength = 32

func Load() (*Config, error) {
	cfg, err := load()
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	profile := "unknown"
	if cfg != nil {
		profile = cfg.AppEnv
	}
	recordConfigValidationEvent(context.Background(), profile, outcome, classifyConfigLoadError(err))
	return cfg, err
}

func load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return &cfg, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.AppEnv = normalizeConfigProfile(c.AppEnv)
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.InviteShareBase = strings.TrimSpace(c.InviteShareBase)
}

func (c *Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver))
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.QRSessionTTL <= 0 {
		errs = append(errs, errors.New("QR_SESSION_TTL must be positive"))
	}
	if c.LoginTicketTTL <= 0 {
		errs = append(errs, errors.New("LOGIN_TICKET_TTL must be positive"))
	}
	if c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("REFRESH_TOKEN_TTL must be positive"))
	}
	if c.InviteCodeMaxAttempts < 1 {
		errs = append(errs, errors.New("INVITE_CODE_MAX_ATTEMPTS must be >= 1"))
	}
	if c.InviteShareBase == "" {
		errs = append(errs, errors.New("INVITE_SHARE_BASE is required"))
	}
	if c.RoleCacheTTL < 0 || c.NegativeLookupTTL < 0 {
		errs = append(errs, errors.New("cache TTLs must not be negative"))
	}
	if !c.IsDevelopment() {
		secrets := map[string]string{
			"JWT_ACCESS_SECRET":  c.JWTAccessSecret,
			"JWT_REFRESH_SECRET": c.JWTRefreshSecret,
			"TICKET_SECRET":      c.TicketSecret,
			"QR_PAYLOAD_SECRET":  c.QRPayloadSecret,
		}
		for _, name := range []string{"JWT_ACCESS_SECRET", "JWT_REFRESH_SECRET", "TICKET_SECRET", "QR_PAYLOAD_SECRET"} {
			if len(secrets[name]) < minSecretLength {
				errs = append(errs, fmt.Errorf("%s must be at least %d bytes", name, minSecretLength))
			}
			if strings.HasPrefix(secrets[name], "dev-") {
				errs = append(errs, fmt.Errorf("%s must not use the development default", name))
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Config) IsDevelopment() bool {
	switch c.AppEnv {
	case "development", "dev", "local", "test":
		return true
	default:
		return false
	}
}

func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.RedisAddr) != ""
}
