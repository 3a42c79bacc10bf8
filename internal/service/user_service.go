package service

import (
	"context"
	"errors"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/repository"
)

type CurrentUser struct {
	PrincipalID string   `json:"principal_id"`
	DisplayName string   `json:"display_name,omitempty"`
	Roles       []string `json:"roles"`
}

type UserService struct {
	store repository.Store
	rbac  *RoleResolver
}

func NewUserService(store repository.Store, rbac *RoleResolver) *UserService {
	return &UserService{store: store, rbac: rbac}
}

// GetCurrentUser returns the caller and its active roles. A principal with
// no user row yet is still returned, as a guest when it has no bindings.
func (s *UserService) GetCurrentUser(ctx context.Context, caller Caller) (*CurrentUser, error) {
	if err := caller.requireAuthenticated(); err != nil {
		return nil, err
	}
	if _, err := s.rbac.Require(ctx, caller.PrincipalID, ActionReadOwnRoles, AuthzContext{TargetPrincipalID: caller.PrincipalID}); err != nil {
		return nil, err
	}
	roles, err := s.rbac.ResolveRoles(ctx, caller.PrincipalID)
	if err != nil {
		return nil, err
	}
	out := &CurrentUser{PrincipalID: caller.PrincipalID, Roles: roles}
	user, err := s.store.Users().FindByID(ctx, caller.PrincipalID)
	switch {
	case err == nil:
		out.DisplayName = user.DisplayName
	case !errors.Is(err, repository.ErrUserNotFound):
		return nil, transient("load user", err)
	}
	return out, nil
}
