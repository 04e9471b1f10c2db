package models

import (
	"gorm.io/gorm"
)

// User is the business operator that owns flows, contacts and bookings.
// Registration and session issuance live in a separate service; this backend
// only validates the tokens it is handed.
type User struct {
	gorm.Model
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	Name         string `json:"name"`
	IsActive     bool   `gorm:"default:true" json:"is_active"`
	TokenVersion int    `gorm:"default:0" json:"-"`

	// Relations
	Flows          []Flow          `gorm:"foreignKey:UserID" json:"flows,omitempty"`
	Contacts       []Contact       `gorm:"foreignKey:UserID" json:"contacts,omitempty"`
	CustomMessages []CustomMessage `gorm:"foreignKey:UserID" json:"custom_messages,omitempty"`
}
