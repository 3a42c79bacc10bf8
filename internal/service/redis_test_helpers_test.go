package service

import (
	"sort"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testRedisPrefix = "qrauth_test"

func newRedisClientForTest(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

// useRedisCaches moves the env's role cache, invite negative cache and
// audit trail onto one miniredis server, the way a deployment with
// REDIS_ADDR set is wired.
func useRedisCaches(t *testing.T, env *testEnv, roleTTL time.Duration) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	server, client := newRedisClientForTest(t)

	rbac := NewRoleResolver(env.store, NewRedisRoleCacheStore(client, testRedisPrefix), roleTTL, nil)
	env.rbac = rbac
	env.handshake.rbac = rbac
	env.invites.rbac = rbac
	env.bindings.rbac = rbac
	env.users.rbac = rbac
	env.invites.negCache = NewRedisNegativeLookupCacheStore(client, testRedisPrefix)

	sinks := MultiAuditSink{env.sink, NewRedisStreamAuditSink(client, testRedisPrefix+":audit", 1000)}
	auditor := NewAuditor(sinks, nil, env.clock.Now)
	env.handshake.audit = auditor
	env.invites.audit = auditor
	env.bindings.audit = auditor
	env.broker.audit = auditor
	env.issuer.audit = auditor
	return server, client
}

// redisKeys lists the keys under prefix in sorted order.
func redisKeys(server *miniredis.Miniredis, prefix string) []string {
	var out []string
	for _, k := range server.Keys() {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
