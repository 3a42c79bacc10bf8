package domain

import "time"

type RoleBindingState string

const (
	RoleBindingActive  RoleBindingState = "active"
	RoleBindingRevoked RoleBindingState = "revoked"
)

const ScopeTypeGlobal = "global"

type RoleBinding struct {
	ID              string           `gorm:"primaryKey;size:36" json:"id"`
	UserPrincipalID string           `gorm:"size:64;not null;uniqueIndex:idx_role_bindings_natural,priority:1" json:"user_principal_id"`
	Role            string           `gorm:"size:64;not null;uniqueIndex:idx_role_bindings_natural,priority:2" json:"role"`
	ScopeType       string           `gorm:"size:32;not null;uniqueIndex:idx_role_bindings_natural,priority:3" json:"scope_type"`
	ScopeID         string           `gorm:"size:64;not null;default:'';uniqueIndex:idx_role_bindings_natural,priority:4" json:"scope_id,omitempty"`
	State           RoleBindingState `gorm:"size:16;not null;index" json:"state"`
	CreatedBy       string           `gorm:"size:64;not null" json:"created_by"`
	RevokedAt       *time.Time       `json:"revoked_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// ScopeTypeFor returns the scope type stored for a binding with the given
// scope id. Unscoped bindings are global.
func ScopeTypeFor(scopeID string) string {
	if scopeID == "" {
		return ScopeTypeGlobal
	}
	return "scope"
}
