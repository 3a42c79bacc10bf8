package di

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/config"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/service"

	"github.com/alicebob/miniredis/v2"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		AppEnv:                "test",
		HTTPAddr:              "127.0.0.1:0",
		DBDriver:              "sqlite",
		DatabaseURL:           "file:" + filepath.Join(t.TempDir(), "di.db"),
		DBAutoMigrate:         true,
		RedisPrefix:           "qrauth",
		JWTIssuer:             "qrauth-test",
		JWTAudience:           "console",
		JWTAccessSecret:       "access-secret-for-tests-0000000000",
		JWTRefreshSecret:      "refresh-secret-for-tests-000000000",
		TicketSecret:          "ticket-secret-for-tests-0000000000",
		QRPayloadSecret:       "payload-secret-for-tests-000000000",
		QRSessionTTL:          90 * time.Second,
		LoginTicketTTL:        2 * time.Minute,
		RefreshTokenTTL:       time.Hour,
		InviteShareBase:       "/join",
		InviteCodeMaxAttempts: 5,
		NegativeLookupTTL:     30 * time.Second,
		AuditStream:           "audit",
		AuditStreamMaxLen:     100,
		ShutdownTimeout:       time.Second,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitializeAppServesHealth(t *testing.T) {
	cfg := testConfig(t)
	application, err := InitializeApp(context.Background(), cfg, discardLogger(), nil)
	if err != nil {
		t.Fatalf("initialize app: %v", err)
	}
	t.Cleanup(func() { _ = application.Shutdown(context.Background()) })

	if application.Redis != nil {
		t.Fatal("redis client should be nil without REDIS_ADDR")
	}
	for _, path := range []string{"/health/live", "/health/ready"} {
		rr := httptest.NewRecorder()
		application.Server.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d body=%s", path, rr.Code, rr.Body.String())
		}
	}
}

func TestInitializeAdminToolsBootstrapsAdmin(t *testing.T) {
	cfg := testConfig(t)
	tools, err := InitializeAdminTools(cfg, discardLogger())
	if err != nil {
		t.Fatalf("initialize admin tools: %v", err)
	}
	defer func() { _ = tools.Close() }()

	binding, err := tools.Bindings.BootstrapAdmin(context.Background(), "root-user")
	if err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	if binding.Role != "admin" || binding.UserPrincipalID != "root-user" {
		t.Fatalf("unexpected binding: %+v", binding)
	}
}

func TestCacheProvidersFollowConfig(t *testing.T) {
	cfg := testConfig(t)
	if _, ok := provideNegativeLookupCache(cfg, nil).(*service.InMemoryNegativeLookupCacheStore); !ok {
		t.Fatal("expected in-memory negative cache without redis")
	}
	cfg.NegativeLookupTTL = 0
	if _, ok := provideNegativeLookupCache(cfg, nil).(*service.NoopNegativeLookupCacheStore); !ok {
		t.Fatal("expected noop negative cache when ttl is zero")
	}

	mr := miniredis.RunT(t)
	cfg.RedisAddr = mr.Addr()
	cfg.NegativeLookupTTL = time.Minute
	client := provideRedis(cfg)
	if client == nil {
		t.Fatal("expected redis client when REDIS_ADDR is set")
	}
	defer func() { _ = client.Close() }()
	if _, ok := provideNegativeLookupCache(cfg, client).(*service.RedisNegativeLookupCacheStore); !ok {
		t.Fatal("expected redis negative cache")
	}
}

func TestImageRendererProvider(t *testing.T) {
	cfg := testConfig(t)
	if _, ok := provideImageRenderer(cfg).(service.UnavailableImageRenderer); !ok {
		t.Fatal("expected unavailable renderer without url")
	}
	cfg.ImageRendererURL = "http://renderer.invalid/render"
	cfg.ImageRendererTimeout = time.Second
	if _, ok := provideImageRenderer(cfg).(*service.HTTPImageRenderer); !ok {
		t.Fatal("expected http renderer")
	}
}

func TestTicketPepperIsDeterministic(t *testing.T) {
	cfg := testConfig(t)
	a, err := provideTicketPepper(cfg)
	if err != nil {
		t.Fatalf("derive pepper: %v", err)
	}
	b, _ := provideTicketPepper(cfg)
	if len(a) != 32 || string(a) != string(b) {
		t.Fatalf("expected stable 32 byte pepper, got %d bytes", len(a))
	}
}
