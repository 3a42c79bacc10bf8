package domain

import "time"

type User struct {
	ID          string    `gorm:"primaryKey;size:64" json:"principal_id"`
	DisplayName string    `gorm:"size:255" json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
