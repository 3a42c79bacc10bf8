package service

import (
	"context"
	"sync"
	"time"
)

// RoleCacheStore caches a principal's resolved active roles. Invalidation
// bumps an epoch so stale entries are simply never read again.
type RoleCacheStore interface {
	Get(ctx context.Context, principalID string) ([]string, bool, error)
	Set(ctx context.Context, principalID string, roles []string, ttl time.Duration) error
	InvalidatePrincipal(ctx context.Context, principalID string) error
	InvalidateAll(ctx context.Context) error
}

type NoopRoleCacheStore struct{}

func NewNoopRoleCacheStore() *NoopRoleCacheStore {
	return &NoopRoleCacheStore{}
}

func (s *NoopRoleCacheStore) Get(context.Context, string) ([]string, bool, error) {
	return nil, false, nil
}

func (s *NoopRoleCacheStore) Set(context.Context, string, []string, time.Duration) error {
	return nil
}

func (s *NoopRoleCacheStore) InvalidatePrincipal(context.Context, string) error {
	return nil
}

func (s *NoopRoleCacheStore) InvalidateAll(context.Context) error {
	return nil
}

type roleCacheEntry struct {
	roles     []string
	expiresAt time.Time
}

type InMemoryRoleCacheStore struct {
	mu             sync.RWMutex
	data           map[string]roleCacheEntry
	globalEpoch    uint64
	principalEpoch map[string]uint64
}

func NewInMemoryRoleCacheStore() *InMemoryRoleCacheStore {
	return &InMemoryRoleCacheStore{
		data:           make(map[string]roleCacheEntry),
		principalEpoch: make(map[string]uint64),
	}
}

func (s *InMemoryRoleCacheStore) Get(_ context.Context, principalID string) ([]string, bool, error) {
	now := time.Now().UTC()
	s.mu.RLock()
	key := s.cacheKeyLocked(principalID)
	entry, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if now.After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.data, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return append([]string(nil), entry.roles...), true, nil
}

func (s *InMemoryRoleCacheStore) Set(_ context.Context, principalID string, roles []string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[s.cacheKeyLocked(principalID)] = roleCacheEntry{
		roles:     append([]string(nil), roles...),
		expiresAt: time.Now().UTC().Add(ttl),
	}
	return nil
}

func (s *InMemoryRoleCacheStore) InvalidatePrincipal(_ context.Context, principalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principalEpoch[principalID]++
	return nil
}

func (s *InMemoryRoleCacheStore) InvalidateAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalEpoch++
	return nil
}

func (s *InMemoryRoleCacheStore) cacheKeyLocked(principalID string) string {
	return buildRoleCacheKey(s.globalEpoch, s.principalEpoch[principalID], principalID)
}
