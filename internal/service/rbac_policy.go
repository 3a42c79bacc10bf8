package service

import (
	"slices"

	"github.com/sandeepkv93/secure-qr-auth-service/internal/domain"
)

type Action string

const (
	ActionReadOwnRoles      Action = "readOwnRoles"
	ActionCreateInvite      Action = "createInvite"
	ActionListInvites       Action = "listInvites"
	ActionRevokeInvite      Action = "revokeInvite"
	ActionAddRoleBinding    Action = "addRoleBinding"
	ActionRevokeRoleBinding Action = "revokeRoleBinding"
	ActionListRoleBindings  Action = "listRoleBindings"
	ActionApproveSession    Action = "approveSession"
	ActionAutoBindRole      Action = "autoBindRole"
)

// AuthzContext carries the attributes an action is judged on.
type AuthzContext struct {
	// Role is the role being granted, for invite and binding actions.
	Role string
	// TargetPrincipalID is the principal whose data is read or changed.
	TargetPrincipalID string
	// ResourceOwnerID is the creator of the resource acted on.
	ResourceOwnerID string
}

// Decision is the result of an authorization check. OwnOnly narrows an
// allowed listing to resources the caller owns.
type Decision struct {
	Allowed bool
	OwnOnly bool
	Reason  Code
}

func allow() Decision { return Decision{Allowed: true} }

func allowOwn() Decision { return Decision{Allowed: true, OwnOnly: true} }

func deny() Decision { return Decision{Reason: CodeForbidden} }

// Err returns ErrForbidden for a denied decision.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return ErrForbidden
}

// Evaluate applies the fixed action table to a principal's resolved roles.
func Evaluate(principalID string, roles []string, action Action, actx AuthzContext) Decision {
	if principalID == "" {
		return deny()
	}
	isAdmin := slices.Contains(roles, domain.RoleAdmin)
	isSocialWorker := slices.Contains(roles, domain.RoleSocialWorker)

	switch action {
	case ActionReadOwnRoles:
		if actx.TargetPrincipalID == "" || actx.TargetPrincipalID == principalID || isAdmin {
			return allow()
		}
	case ActionCreateInvite, ActionAddRoleBinding, ActionAutoBindRole:
		if domain.IsPrivilegedRole(actx.Role) {
			if isAdmin {
				return allow()
			}
			return deny()
		}
		if isAdmin || isSocialWorker {
			return allow()
		}
	case ActionListInvites:
		if isAdmin {
			return allow()
		}
		if isSocialWorker {
			return allowOwn()
		}
	case ActionRevokeInvite:
		if isAdmin {
			return allow()
		}
		if isSocialWorker && actx.ResourceOwnerID != "" && actx.ResourceOwnerID == principalID {
			return allow()
		}
	case ActionRevokeRoleBinding:
		if isAdmin {
			return allow()
		}
	case ActionListRoleBindings:
		if isAdmin {
			return allow()
		}
		if actx.TargetPrincipalID == "" || actx.TargetPrincipalID == principalID {
			return allowOwn()
		}
	case ActionApproveSession:
		return allow()
	}
	return deny()
}
