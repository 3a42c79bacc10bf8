package domain

import "time"

type InviteState string

const (
	InviteActive    InviteState = "active"
	InviteRevoked   InviteState = "revoked"
	InviteExhausted InviteState = "exhausted"
	InviteExpired   InviteState = "expired"
)

func ParseInviteState(v string) (InviteState, bool) {
	switch InviteState(v) {
	case InviteActive, InviteRevoked, InviteExhausted, InviteExpired:
		return InviteState(v), true
	default:
		return "", false
	}
}

// Invite grants Role to whoever redeems Code while it is active. Rows are
// never deleted; state transitions keep the history.
type Invite struct {
	ID        string      `gorm:"primaryKey;size:36" json:"invite_id"`
	Code      string      `gorm:"size:8;uniqueIndex;not null" json:"code"`
	Role      string      `gorm:"size:64;not null;index" json:"role"`
	ScopeID   string      `gorm:"size:64;not null;default:''" json:"scope_id,omitempty"`
	UsesTotal int         `gorm:"not null" json:"uses_total"`
	UsesLeft  int         `gorm:"not null" json:"uses_left"`
	ExpiresAt *time.Time  `gorm:"index" json:"expires_at,omitempty"`
	State     InviteState `gorm:"size:16;not null;index" json:"state"`
	Note      string      `gorm:"size:512" json:"note,omitempty"`
	SharePath string      `gorm:"size:512;not null" json:"share_path"`
	CreatedBy string      `gorm:"size:64;not null;index" json:"created_by"`
	RevokedAt *time.Time  `json:"revoked_at,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (i *Invite) ExpiredAt(now time.Time) bool {
	return i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}
