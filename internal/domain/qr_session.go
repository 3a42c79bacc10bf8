package domain

import "time"

type QRSessionStatus string

const (
	QRSessionPending  QRSessionStatus = "pending"
	QRSessionApproved QRSessionStatus = "approved"
	QRSessionExpired  QRSessionStatus = "expired"
	QRSessionConsumed QRSessionStatus = "consumed"
)

// QRSession coordinates a console login that a companion device approves by
// scanning EncodedPayload. Status only moves pending->approved->consumed or
// pending->expired.
type QRSession struct {
	ID             string          `gorm:"primaryKey;size:36" json:"session_id"`
	Status         QRSessionStatus `gorm:"size:16;not null;index:idx_qr_sessions_status_expiry,priority:1" json:"status"`
	EncodedPayload string          `gorm:"size:256;not null" json:"-"`
	ApproveNonce   *string         `gorm:"size:64" json:"-"`
	RequiredRole   string          `gorm:"size:64;not null" json:"required_role"`
	AutoBind       bool            `gorm:"not null;default:false" json:"auto_bind"`
	CreatedBy      *string         `gorm:"size:64" json:"created_by,omitempty"`
	ResultTicket   *string         `gorm:"type:text" json:"-"`
	ResultUser     *string         `gorm:"type:text" json:"-"`
	ApprovedBy     *string         `gorm:"size:64" json:"approved_by,omitempty"`
	ApprovedAt     *time.Time      `json:"approved_at,omitempty"`
	ConsumedAt     *time.Time      `json:"consumed_at,omitempty"`
	ExpiresAt      time.Time       `gorm:"not null;index:idx_qr_sessions_status_expiry,priority:2" json:"expires_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (QRSession) TableName() string { return "qr_sessions" }

func (s *QRSession) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

func (s *QRSession) IsTerminal() bool {
	return s.Status == QRSessionExpired || s.Status == QRSessionConsumed
}

// UserInfo is the identity an approved session logs the console in as.
type UserInfo struct {
	PrincipalID  string   `json:"principal_id"`
	DisplayName  string   `json:"display_name,omitempty"`
	SelectedRole string   `json:"selected_role"`
	Roles        []string `json:"roles"`
}
