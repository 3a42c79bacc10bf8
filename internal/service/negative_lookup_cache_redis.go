package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisNegativeLookupCacheStore keys each miss under its namespace's epoch.
// Invalidating a namespace is one INCR; entries from older epochs are never
// read again and age out on their own TTL.
type RedisNegativeLookupCacheStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisNegativeLookupCacheStore(client redis.UniversalClient, prefix string) *RedisNegativeLookupCacheStore {
	if prefix == "" {
		prefix = "qrauth"
	}
	return &RedisNegativeLookupCacheStore{client: client, prefix: prefix + ":neg"}
}

func (s *RedisNegativeLookupCacheStore) Get(ctx context.Context, namespace, key string) (bool, error) {
	if s.client == nil {
		return false, nil
	}
	dataKey, err := s.dataKey(ctx, namespace, key)
	if err != nil {
		return false, err
	}
	n, err := s.client.Exists(ctx, dataKey).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisNegativeLookupCacheStore) Set(ctx context.Context, namespace, key string, ttl time.Duration) error {
	if s.client == nil || ttl <= 0 {
		return nil
	}
	dataKey, err := s.dataKey(ctx, namespace, key)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, dataKey, "1", ttl).Err()
}

func (s *RedisNegativeLookupCacheStore) InvalidateNamespace(ctx context.Context, namespace string) error {
	if s.client == nil {
		return nil
	}
	return s.client.Incr(ctx, s.epochKey(namespace)).Err()
}

func (s *RedisNegativeLookupCacheStore) dataKey(ctx context.Context, namespace, key string) (string, error) {
	epoch, err := parseEpoch(s.client.Get(ctx, s.epochKey(namespace)))
	if err != nil {
		return "", fmt.Errorf("negative cache epoch: %w", err)
	}
	return fmt.Sprintf("%s:%s:e%d:%s", s.prefix, normalizeToken(namespace), epoch, hashToken(lookupKey(key))), nil
}

func (s *RedisNegativeLookupCacheStore) epochKey(namespace string) string {
	return s.prefix + ":epoch:" + normalizeToken(namespace)
}
