package domain

import "time"

// LoginTicket records a ticket minted for an approved QR session so the
// exchange can be enforced as single-use.
type LoginTicket struct {
	ID               string     `gorm:"primaryKey;size:64" json:"id"`
	SessionID        string     `gorm:"size:36;uniqueIndex;not null" json:"session_id"`
	PrincipalID      string     `gorm:"size:64;index;not null" json:"principal_id"`
	TicketHash       string     `gorm:"size:128;uniqueIndex;not null" json:"-"`
	RefreshTokenHash string     `gorm:"size:128;uniqueIndex;not null" json:"-"`
	ExpiresAt        time.Time  `gorm:"index;not null" json:"expires_at"`
	ConsumedAt       *time.Time `json:"consumed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}
