package models

import (
	"time"

	"gorm.io/gorm"
)

// Outbound message delivery states reported by the provider
const (
	DeliverySent      = "sent"
	DeliveryDelivered = "delivered"
	DeliveryRead      = "read"
	DeliveryFailed    = "failed"
)

// InboundMessage is one customer message received through the webhook. The
// unique index on ProviderMessageID makes redelivery of the same webhook
// payload a no-op.
type InboundMessage struct {
	gorm.Model
	UserID    uint `gorm:"not null;index" json:"user_id"`
	ContactID uint `gorm:"not null;index" json:"contact_id"`

	ProviderMessageID string    `gorm:"not null;uniqueIndex" json:"provider_message_id"`
	Type              string    `gorm:"not null" json:"type"` // text, button, interactive
	Body              string    `gorm:"type:text" json:"body"`
	ButtonPayload     string    `json:"button_payload"`
	ButtonText        string    `json:"button_text"`
	Timestamp         time.Time `gorm:"not null" json:"timestamp"`

	// Relations
	Contact Contact `json:"-"`
}

// OutboundMessage records every automated send, so delivery status updates
// from the provider have something to attach to.
type OutboundMessage struct {
	gorm.Model
	UserID    uint `gorm:"index" json:"user_id"`
	ContactID uint `gorm:"not null;index" json:"contact_id"`

	ProviderMessageID string `gorm:"index" json:"provider_message_id"`
	Kind              string `gorm:"not null" json:"kind"` // template, text, buttons
	Node              string `json:"node"`                 // flow node this send originated from, if any
	Body              string `gorm:"type:text" json:"body"`
	Status            string `gorm:"default:'sent'" json:"status"`

	// Relations
	Contact Contact `json:"-"`
}
