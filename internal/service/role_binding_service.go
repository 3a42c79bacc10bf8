package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/domain"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/observability"
	"github.com/sandeepkv93/secure-qr-auth-service/internal/repository"
)

// SystemPrincipal is recorded as the creator of bindings made outside any
// request, such as the bootstrap admin.
const SystemPrincipal = "system"

type AddRoleBindingInput struct {
	UserPrincipalID string
	Role            string
	ScopeID         string
}

type ListRoleBindingsInput struct {
	UserPrincipalID string
	Role            string
	State           string
	Page            int
	PageSize        int
}

type RoleBindingService struct {
	store repository.Store
	rbac  *RoleResolver
	now   Clock
	audit *Auditor
}

func NewRoleBindingService(store repository.Store, rbac *RoleResolver, now Clock, audit *Auditor) *RoleBindingService {
	if now == nil {
		now = SystemClock
	}
	return &RoleBindingService{store: store, rbac: rbac, now: now, audit: audit}
}

// Add ensures an active binding. Adding a binding that is already active
// succeeds without change.
func (s *RoleBindingService) Add(ctx context.Context, caller Caller, in AddRoleBindingInput) (*domain.RoleBinding, error) {
	if err := caller.requireAuthenticated(); err != nil {
		return nil, err
	}
	principal := strings.TrimSpace(in.UserPrincipalID)
	if principal == "" {
		return nil, validationError("user_principal_id is required")
	}
	role := domain.NormalizeRole(in.Role)
	if role == "" {
		return nil, validationError("role is required")
	}
	if !domain.IsKnownRole(role) {
		return nil, ErrInvalidRole
	}
	if _, err := s.rbac.Require(ctx, caller.PrincipalID, ActionAddRoleBinding, AuthzContext{Role: role, TargetPrincipalID: principal}); err != nil {
		return nil, err
	}
	return s.ensure(ctx, caller.PrincipalID, principal, role, strings.TrimSpace(in.ScopeID), "direct")
}

// BootstrapAdmin grants admin to principal without an authorization check.
// It is only reachable from the command line.
func (s *RoleBindingService) BootstrapAdmin(ctx context.Context, principal string) (*domain.RoleBinding, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return nil, validationError("principal is required")
	}
	return s.ensure(ctx, SystemPrincipal, principal, domain.RoleAdmin, "", "bootstrap")
}

func (s *RoleBindingService) ensure(ctx context.Context, actor, principal, role, scopeID, source string) (*domain.RoleBinding, error) {
	now := s.now()
	var binding *domain.RoleBinding
	var changed bool
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Users().EnsureExists(ctx, principal, "", now); err != nil {
			return err
		}
		var err error
		binding, changed, err = tx.RoleBindings().Ensure(ctx, &domain.RoleBinding{
			UserPrincipalID: principal,
			Role:            role,
			ScopeID:         scopeID,
			CreatedBy:       actor,
		}, now)
		return err
	})
	if err != nil {
		return nil, transient("ensure role binding", err)
	}
	if changed {
		s.rbac.InvalidatePrincipal(ctx, principal)
		observability.RecordRoleBindingMutation(ctx, "ensure", source)
	}
	outcome := "success"
	if !changed {
		outcome = "unchanged"
	}
	s.audit.Emit(ctx, observability.AuditEvent{
		Event:      "role_binding.added",
		ActorID:    actor,
		TargetType: "role_binding",
		TargetID:   binding.ID,
		Outcome:    outcome,
		Attributes: map[string]string{"principal_id": principal, "role": role, "source": source},
	})
	return binding, nil
}

// List returns every binding for admins and only the caller's own bindings
// for anyone else.
func (s *RoleBindingService) List(ctx context.Context, caller Caller, in ListRoleBindingsInput) (repository.PageResult[domain.RoleBinding], error) {
	var empty repository.PageResult[domain.RoleBinding]
	if err := caller.requireAuthenticated(); err != nil {
		return empty, err
	}
	target := strings.TrimSpace(in.UserPrincipalID)
	decision, err := s.rbac.Require(ctx, caller.PrincipalID, ActionListRoleBindings, AuthzContext{TargetPrincipalID: target})
	if err != nil {
		return empty, err
	}
	query := repository.RoleBindingListQuery{
		PageRequest:     repository.PageRequest{Page: in.Page, PageSize: in.PageSize},
		UserPrincipalID: target,
	}
	if decision.OwnOnly {
		query.UserPrincipalID = caller.PrincipalID
	}
	if role := domain.NormalizeRole(in.Role); role != "" {
		if !domain.IsKnownRole(role) {
			return empty, ErrInvalidRole
		}
		query.Role = role
	}
	switch state := domain.RoleBindingState(strings.ToLower(strings.TrimSpace(in.State))); state {
	case "":
	case domain.RoleBindingActive, domain.RoleBindingRevoked:
		query.State = state
	default:
		return empty, validationError("unknown role binding state")
	}
	page, err := s.store.RoleBindings().ListPaged(ctx, query)
	if err != nil {
		return empty, transient("list role bindings", err)
	}
	return page, nil
}

// Revoke marks a binding revoked. The row is kept and revoking twice
// succeeds.
func (s *RoleBindingService) Revoke(ctx context.Context, caller Caller, bindingID string) error {
	if err := caller.requireAuthenticated(); err != nil {
		return err
	}
	bindingID = strings.TrimSpace(bindingID)
	if bindingID == "" {
		return validationError("binding_id is required")
	}
	if _, err := s.rbac.Require(ctx, caller.PrincipalID, ActionRevokeRoleBinding, AuthzContext{}); err != nil {
		return err
	}
	binding, err := s.store.RoleBindings().FindByID(ctx, bindingID)
	if err != nil {
		if errors.Is(err, repository.ErrRoleBindingNotFound) {
			return ErrRoleBindingNotFound
		}
		return transient("load role binding", err)
	}
	swapped, err := s.store.RoleBindings().Revoke(ctx, binding.ID, s.now())
	if err != nil {
		return transient("revoke role binding", err)
	}
	outcome := "already_revoked"
	if swapped {
		outcome = "success"
		s.rbac.InvalidatePrincipal(ctx, binding.UserPrincipalID)
		observability.RecordRoleBindingMutation(ctx, "revoke", "direct")
	}
	s.audit.Emit(ctx, observability.AuditEvent{
		Event:      "role_binding.revoked",
		ActorID:    caller.PrincipalID,
		TargetType: "role_binding",
		TargetID:   binding.ID,
		Outcome:    outcome,
		Attributes: map[string]string{"principal_id": binding.UserPrincipalID, "role": binding.Role},
	})
	return nil
}
