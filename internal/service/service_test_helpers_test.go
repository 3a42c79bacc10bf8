package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/observability"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/repository"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/security"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingAuditSink struct {
	mu     sync.Mutex
	events []observability.AuditEvent
	err    error
}

func (s *recordingAuditSink) Record(_ context.Context, e observability.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *recordingAuditSink) count(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

type testEnv struct {
	store     *repository.GormStore
	clock     *testClock
	sink      *recordingAuditSink
	jwt       *security.JWTManager
	codec     *security.PayloadCodec
	rbac      *RoleResolver
	negCache  *InMemoryNegativeLookupCacheStore
	issuer    *TicketIssuer
	broker    *QRBroker
	handshake *ApprovalHandshake
	invites   *InviteRegistry
	bindings  *RoleBindingService
	users     *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := repository.OpenDatabase("sqlite", dsn, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	clock := newTestClock()
	store := repository.NewStore(db)
	sink := &recordingAuditSink{}
	auditor := NewAuditor(sink, nil, clock.Now)
	jwtMgr := security.NewJWTManager("test-issuer", "console", "access-secret-for-tests-0123456789", "refresh-secret-for-tests-012345678", "ticket-secret-for-tests-0123456789").WithClock(clock.Now)
	codec, err := security.NewPayloadCodec("qr-payload-secret-for-tests-012345")
	if err != nil {
		t.Fatalf("payload codec: %v", err)
	}
	pepper, err := security.DeriveKey("ticket-secret-for-tests-0123456789", "ticket-hash", 32)
	if err != nil {
		t.Fatalf("derive pepper: %v", err)
	}
	rbac := NewRoleResolver(store, NewNoopRoleCacheStore(), 0, nil)
	negCache := NewInMemoryNegativeLookupCacheStore()
	issuer := NewTicketIssuer(jwtMgr, store, pepper, 2*time.Minute, 720*time.Hour, clock.Now, auditor)

	return &testEnv{
		store:     store,
		clock:     clock,
		sink:      sink,
		jwt:       jwtMgr,
		codec:     codec,
		rbac:      rbac,
		negCache:  negCache,
		issuer:    issuer,
		broker:    NewQRBroker(store, codec, 90*time.Second, clock.Now, auditor, nil),
		handshake: NewApprovalHandshake(store, codec, rbac, issuer, clock.Now, auditor),
		invites: NewInviteRegistry(store, rbac, negCache, nil, InviteRegistryConfig{
			ShareBase:         "/join",
			MaxCodeAttempts:   5,
			NegativeLookupTTL: 30 * time.Second,
		}, clock.Now, auditor, nil),
		bindings: NewRoleBindingService(store, rbac, clock.Now, auditor),
		users:    NewUserService(store, rbac),
	}
}

func (e *testEnv) grant(t *testing.T, principal, role string) {
	t.Helper()
	_, _, err := e.store.RoleBindings().Ensure(context.Background(), &domain.RoleBinding{
		UserPrincipalID: principal,
		Role:            role,
		CreatedBy:       SystemPrincipal,
	}, e.clock.Now())
	if err != nil {
		t.Fatalf("grant %s to %s: %v", role, principal, err)
	}
}

func wantCode(t *testing.T, err error, code Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %s, got nil", code)
	}
	var domainErr *Error
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected domain error %s, got %T: %v", code, err, err)
	}
	if domainErr.Code != code {
		t.Fatalf("expected error code %s, got %s (%v)", code, domainErr.Code, err)
	}
}
