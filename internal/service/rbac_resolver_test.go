package service

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/domain"
)

func TestEvaluateMatrix(t *testing.T) {
	admin := []string{domain.RoleAdmin}
	sw := []string{domain.RoleSocialWorker}
	vol := []string{domain.RoleVolunteer}
	var guest []string

	tests := []struct {
		name      string
		principal string
		roles     []string
		action    Action
		actx      AuthzContext
		allowed   bool
		ownOnly   bool
	}{
		{name: "guest reads own roles", principal: "g", roles: guest, action: ActionReadOwnRoles, allowed: true},
		{name: "volunteer cannot read others roles", principal: "v", roles: vol, action: ActionReadOwnRoles, actx: AuthzContext{TargetPrincipalID: "x"}},
		{name: "anonymous reads nothing", principal: "", roles: guest, action: ActionReadOwnRoles},

		{name: "admin invites admin", principal: "a", roles: admin, action: ActionCreateInvite, actx: AuthzContext{Role: domain.RoleAdmin}, allowed: true},
		{name: "social worker invites volunteer", principal: "s", roles: sw, action: ActionCreateInvite, actx: AuthzContext{Role: domain.RoleVolunteer}, allowed: true},
		{name: "social worker cannot invite admin", principal: "s", roles: sw, action: ActionCreateInvite, actx: AuthzContext{Role: domain.RoleAdmin}},
		{name: "volunteer cannot invite", principal: "v", roles: vol, action: ActionCreateInvite, actx: AuthzContext{Role: domain.RoleVolunteer}},

		{name: "admin lists all invites", principal: "a", roles: admin, action: ActionListInvites, allowed: true},
		{name: "social worker lists own invites", principal: "s", roles: sw, action: ActionListInvites, allowed: true, ownOnly: true},
		{name: "volunteer cannot list invites", principal: "v", roles: vol, action: ActionListInvites},

		{name: "admin revokes any invite", principal: "a", roles: admin, action: ActionRevokeInvite, actx: AuthzContext{ResourceOwnerID: "other"}, allowed: true},
		{name: "social worker revokes own invite", principal: "s", roles: sw, action: ActionRevokeInvite, actx: AuthzContext{ResourceOwnerID: "s"}, allowed: true},
		{name: "social worker cannot revoke foreign invite", principal: "s", roles: sw, action: ActionRevokeInvite, actx: AuthzContext{ResourceOwnerID: "other"}},

		{name: "social worker binds volunteer", principal: "s", roles: sw, action: ActionAddRoleBinding, actx: AuthzContext{Role: domain.RoleVolunteer}, allowed: true},
		{name: "social worker cannot bind admin", principal: "s", roles: sw, action: ActionAddRoleBinding, actx: AuthzContext{Role: domain.RoleAdmin}},
		{name: "admin revokes binding", principal: "a", roles: admin, action: ActionRevokeRoleBinding, allowed: true},
		{name: "social worker cannot revoke binding", principal: "s", roles: sw, action: ActionRevokeRoleBinding},

		{name: "admin lists any bindings", principal: "a", roles: admin, action: ActionListRoleBindings, actx: AuthzContext{TargetPrincipalID: "x"}, allowed: true},
		{name: "volunteer lists own bindings", principal: "v", roles: vol, action: ActionListRoleBindings, allowed: true, ownOnly: true},
		{name: "volunteer cannot list others bindings", principal: "v", roles: vol, action: ActionListRoleBindings, actx: AuthzContext{TargetPrincipalID: "x"}},

		{name: "guest approves session", principal: "g", roles: guest, action: ActionApproveSession, allowed: true},
		{name: "anonymous console cannot auto-bind volunteer", principal: "", roles: guest, action: ActionAutoBindRole, actx: AuthzContext{Role: domain.RoleVolunteer}},
		{name: "guest console cannot auto-bind social worker", principal: "g", roles: guest, action: ActionAutoBindRole, actx: AuthzContext{Role: domain.RoleSocialWorker}},
		{name: "volunteer console cannot auto-bind volunteer", principal: "v", roles: vol, action: ActionAutoBindRole, actx: AuthzContext{Role: domain.RoleVolunteer}},
		{name: "social worker console auto-binds volunteer", principal: "s", roles: sw, action: ActionAutoBindRole, actx: AuthzContext{Role: domain.RoleVolunteer}, allowed: true},
		{name: "social worker console cannot auto-bind admin", principal: "s", roles: sw, action: ActionAutoBindRole, actx: AuthzContext{Role: domain.RoleAdmin}},
		{name: "admin console auto-binds admin", principal: "a", roles: admin, action: ActionAutoBindRole, actx: AuthzContext{Role: domain.RoleAdmin}, allowed: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := Evaluate(tc.principal, tc.roles, tc.action, tc.actx)
			if d.Allowed != tc.allowed {
				t.Fatalf("allowed=%v want %v", d.Allowed, tc.allowed)
			}
			if d.OwnOnly != tc.ownOnly {
				t.Fatalf("ownOnly=%v want %v", d.OwnOnly, tc.ownOnly)
			}
			if !d.Allowed {
				if d.Reason != CodeForbidden {
					t.Fatalf("deny reason=%s want FORBIDDEN", d.Reason)
				}
				wantCode(t, d.Err(), CodeForbidden)
			}
		})
	}
}

func TestResolveRolesGuestAndSorted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	roles, err := env.rbac.ResolveRoles(ctx, "nobody")
	if err != nil {
		t.Fatalf("resolve guest: %v", err)
	}
	if len(roles) != 0 {
		t.Fatalf("guest should have no roles, got %v", roles)
	}

	env.grant(t, "p", domain.RoleVolunteer)
	env.grant(t, "p", domain.RoleAdmin)
	roles, err = env.rbac.ResolveRoles(ctx, "p")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !slices.Equal(roles, []string{domain.RoleAdmin, domain.RoleVolunteer}) {
		t.Fatalf("unexpected roles %v", roles)
	}
}

func TestResolveRolesExcludesRevokedBindings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.grant(t, "p", domain.RoleSocialWorker)
	binding, _, err := env.store.RoleBindings().Ensure(ctx, &domain.RoleBinding{UserPrincipalID: "p", Role: domain.RoleVolunteer, CreatedBy: SystemPrincipal}, env.clock.Now())
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if _, err := env.store.RoleBindings().Revoke(ctx, binding.ID, env.clock.Now()); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	roles, err := env.rbac.ResolveRoles(ctx, "p")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !slices.Equal(roles, []string{domain.RoleSocialWorker}) {
		t.Fatalf("revoked binding must not confer a role, got %v", roles)
	}
}

func TestRoleResolverCacheInvalidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cache := NewInMemoryRoleCacheStore()
	resolver := NewRoleResolver(env.store, cache, time.Minute, nil)

	binding, _, err := env.store.RoleBindings().Ensure(ctx, &domain.RoleBinding{UserPrincipalID: "p", Role: domain.RoleSocialWorker, CreatedBy: SystemPrincipal}, env.clock.Now())
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	first, err := resolver.ResolveRoles(ctx, "p")
	if err != nil || len(first) != 1 {
		t.Fatalf("first resolve: roles=%v err=%v", first, err)
	}

	if _, err := env.store.RoleBindings().Revoke(ctx, binding.ID, env.clock.Now()); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	cached, err := resolver.ResolveRoles(ctx, "p")
	if err != nil {
		t.Fatalf("cached resolve: %v", err)
	}
	if len(cached) != 1 {
		t.Fatalf("expected cached roles before invalidation, got %v", cached)
	}

	resolver.InvalidatePrincipal(ctx, "p")
	fresh, err := resolver.ResolveRoles(ctx, "p")
	if err != nil {
		t.Fatalf("fresh resolve: %v", err)
	}
	if len(fresh) != 0 {
		t.Fatalf("expected no roles after invalidation, got %v", fresh)
	}
}

func TestRoleResolverZeroTTLDisablesCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cache := NewInMemoryRoleCacheStore()
	resolver := NewRoleResolver(env.store, cache, 0, nil)

	if _, err := resolver.ResolveRoles(ctx, "p"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	env.grant(t, "p", domain.RoleVolunteer)
	roles, err := resolver.ResolveRoles(ctx, "p")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !slices.Equal(roles, []string{domain.RoleVolunteer}) {
		t.Fatalf("expected uncached read to see new binding, got %v", roles)
	}
}

func TestRequireReturnsForbidden(t *testing.T) {
	env := newTestEnv(t)
	env.grant(t, "v", domain.RoleVolunteer)
	_, err := env.rbac.Require(context.Background(), "v", ActionCreateInvite, AuthzContext{Role: domain.RoleVolunteer})
	wantCode(t, err, CodeForbidden)

	decision, err := env.rbac.Authorize(context.Background(), "v", ActionCreateInvite, AuthzContext{Role: domain.RoleVolunteer})
	if err != nil {
		t.Fatalf("authorize returns denials in the decision, got err %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected deny")
	}
}
