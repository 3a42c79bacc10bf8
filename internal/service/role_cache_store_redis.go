package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisRoleCacheStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRoleCacheStore(client redis.UniversalClient, prefix string) *RedisRoleCacheStore {
	if prefix == "" {
		prefix = "rbac_roles"
	}
	return &RedisRoleCacheStore{
		client: client,
		prefix: prefix,
	}
}

func (s *RedisRoleCacheStore) Get(ctx context.Context, principalID string) ([]string, bool, error) {
	if s.client == nil {
		return nil, false, nil
	}
	key, err := s.dataKey(ctx, principalID)
	if err != nil {
		return nil, false, err
	}
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var roles []string
	if err := json.Unmarshal(raw, &roles); err != nil {
		return nil, false, err
	}
	return roles, true, nil
}

func (s *RedisRoleCacheStore) Set(ctx context.Context, principalID string, roles []string, ttl time.Duration) error {
	if s.client == nil || ttl <= 0 {
		return nil
	}
	key, err := s.dataKey(ctx, principalID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(roles)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, payload, ttl).Err()
}

func (s *RedisRoleCacheStore) InvalidatePrincipal(ctx context.Context, principalID string) error {
	if s.client == nil {
		return nil
	}
	return s.client.Incr(ctx, s.principalEpochKey(principalID)).Err()
}

func (s *RedisRoleCacheStore) InvalidateAll(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Incr(ctx, s.globalEpochKey()).Err()
}

func (s *RedisRoleCacheStore) dataKey(ctx context.Context, principalID string) (string, error) {
	pipe := s.client.Pipeline()
	globalEpochCmd := pipe.Get(ctx, s.globalEpochKey())
	principalEpochCmd := pipe.Get(ctx, s.principalEpochKey(principalID))
	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return "", err
	}
	globalEpoch, err := parseEpoch(globalEpochCmd)
	if err != nil {
		return "", err
	}
	principalEpoch, err := parseEpoch(principalEpochCmd)
	if err != nil {
		return "", err
	}
	return s.prefix + ":" + buildRoleCacheKey(globalEpoch, principalEpoch, principalID), nil
}

func parseEpoch(cmd *redis.StringCmd) (uint64, error) {
	v, err := cmd.Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if v == "" {
		return 0, nil
	}
	return strconv.ParseUint(v, 10, 64)
}

func (s *RedisRoleCacheStore) globalEpochKey() string {
	return s.prefix + ":epoch:global"
}

func (s *RedisRoleCacheStore) principalEpochKey(principalID string) string {
	return s.prefix + ":epoch:principal:" + hashToken(principalID)
}
