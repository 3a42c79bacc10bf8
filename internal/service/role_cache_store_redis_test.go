package service

import (
	"context"
	"testing"
	"time"
)

func TestRedisRoleCacheStoreKeyingAndInvalidation(t *testing.T) {
	ctx := context.Background()
	_, client := newRedisClientForTest(t)
	store := NewRedisRoleCacheStore(client, "roles_test")

	principal := "user-42"
	roles := []string{"admin", "volunteer"}

	if err := store.Set(ctx, principal, roles, time.Minute); err != nil {
		t.Fatalf("set initial roles: %v", err)
	}
	got, ok, err := store.Get(ctx, principal)
	if err != nil {
		t.Fatalf("get initial roles: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit after set")
	}
	if len(got) != 2 || got[0] != roles[0] || got[1] != roles[1] {
		t.Fatalf("unexpected cached roles: %#v", got)
	}

	if err := store.InvalidatePrincipal(ctx, principal); err != nil {
		t.Fatalf("invalidate principal: %v", err)
	}
	_, ok, err = store.Get(ctx, principal)
	if err != nil {
		t.Fatalf("get after principal invalidation: %v", err)
	}
	if ok {
		t.Fatal("expected miss after principal invalidation")
	}

	if err := store.Set(ctx, principal, roles, time.Minute); err != nil {
		t.Fatalf("set after principal invalidation: %v", err)
	}
	if err := store.InvalidateAll(ctx); err != nil {
		t.Fatalf("invalidate all: %v", err)
	}
	_, ok, err = store.Get(ctx, principal)
	if err != nil {
		t.Fatalf("get after global invalidation: %v", err)
	}
	if ok {
		t.Fatal("expected miss after global invalidation")
	}
}

func TestRedisRoleCacheStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	server, client := newRedisClientForTest(t)
	store := NewRedisRoleCacheStore(client, "roles_test")

	if err := store.Set(ctx, "p", []string{"volunteer"}, 2*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	server.FastForward(3 * time.Second)
	if _, ok, err := store.Get(ctx, "p"); err != nil || ok {
		t.Fatalf("expected miss after ttl, ok=%v err=%v", ok, err)
	}
}

func TestRedisRoleCacheStoreMalformedEpochValue(t *testing.T) {
	ctx := context.Background()
	_, client := newRedisClientForTest(t)
	store := NewRedisRoleCacheStore(client, "roles_test")

	if err := client.Set(ctx, store.globalEpochKey(), "NaN", time.Minute).Err(); err != nil {
		t.Fatalf("seed malformed epoch: %v", err)
	}

	if _, _, err := store.Get(ctx, "p"); err == nil {
		t.Fatal("expected parse error for malformed epoch")
	}
}

func TestInMemoryRoleCacheStoreInvalidation(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryRoleCacheStore()

	if err := store.Set(ctx, "p1", []string{"volunteer"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "p2", []string{"admin"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "p1"); !ok {
		t.Fatal("expected hit for p1")
	}
	if err := store.InvalidatePrincipal(ctx, "p1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "p1"); ok {
		t.Fatal("expected miss for p1 after invalidation")
	}
	if _, ok, _ := store.Get(ctx, "p2"); !ok {
		t.Fatal("expected p2 to stay cached")
	}
	if err := store.Set(ctx, "p2", []string{"admin"}, 0); err != nil {
		t.Fatalf("set with zero ttl: %v", err)
	}
}
