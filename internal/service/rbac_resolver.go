package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/observability"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/repository"
)

// RoleResolver derives a principal's active roles from its role bindings,
// optionally through a RoleCacheStore.
type RoleResolver struct {
	store      repository.Store
	cacheStore RoleCacheStore
	ttl        time.Duration
	logger     *slog.Logger
}

func NewRoleResolver(store repository.Store, cacheStore RoleCacheStore, ttl time.Duration, logger *slog.Logger) *RoleResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleResolver{
		store:      store,
		cacheStore: cacheStore,
		ttl:        ttl,
		logger:     logger,
	}
}

// ResolveRoles returns the principal's active roles, sorted. A principal
// without bindings is a guest and gets an empty set.
func (r *RoleResolver) ResolveRoles(ctx context.Context, principalID string) ([]string, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return []string{}, nil
	}
	if r.cacheEnabled() {
		cached, ok, err := r.cacheStore.Get(ctx, principalID)
		switch {
		case err != nil:
			observability.RecordRBACRoleCacheEvent(ctx, "error")
			r.logger.WarnContext(ctx, "role cache read failed", "error", err)
		case ok:
			observability.RecordRBACRoleCacheEvent(ctx, "hit")
			return cached, nil
		default:
			observability.RecordRBACRoleCacheEvent(ctx, "miss")
		}
	}

	roles, err := r.store.RoleBindings().ListActiveRoles(ctx, principalID)
	if err != nil {
		return nil, transient("resolve roles", err)
	}
	if r.cacheEnabled() {
		if err := r.cacheStore.Set(ctx, principalID, roles, r.ttl); err != nil {
			r.logger.WarnContext(ctx, "role cache write failed", "error", err)
		}
	}
	return roles, nil
}

// Authorize resolves the principal's roles and evaluates the action. The
// error is only ever a transient store failure; denials are reported in the
// Decision.
func (r *RoleResolver) Authorize(ctx context.Context, principalID string, action Action, actx AuthzContext) (Decision, error) {
	roles, err := r.ResolveRoles(ctx, principalID)
	if err != nil {
		return deny(), err
	}
	decision := Evaluate(principalID, roles, action, actx)
	outcome := "allow"
	if !decision.Allowed {
		outcome = "deny"
	}
	observability.RecordRBACDecision(ctx, string(action), outcome)
	return decision, nil
}

// Require is Authorize collapsed into a single error.
func (r *RoleResolver) Require(ctx context.Context, principalID string, action Action, actx AuthzContext) (Decision, error) {
	decision, err := r.Authorize(ctx, principalID, action, actx)
	if err != nil {
		return decision, err
	}
	return decision, decision.Err()
}

func (r *RoleResolver) InvalidatePrincipal(ctx context.Context, principalID string) {
	if r.cacheStore == nil {
		return
	}
	if err := r.cacheStore.InvalidatePrincipal(ctx, principalID); err != nil {
		r.logger.WarnContext(ctx, "role cache invalidation failed", "principal_id", principalID, "error", err)
	}
}

func (r *RoleResolver) cacheEnabled() bool {
	return r.cacheStore != nil && r.ttl > 0
}

func buildRoleCacheKey(globalEpoch, principalEpoch uint64, principalID string) string {
	return fmt.Sprintf("roles:g%d:p%d:%s", globalEpoch, principalEpoch, hashToken(principalID))
}
