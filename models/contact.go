package models

import (
	"gorm.io/gorm"
)

// Contact represents a conversation partner, created on their first inbound
// message. LastNodeSent/LastFlowID form the conversation cursor: which node of
// which flow the automation last sent, so the next reply can be resolved
// without an explicit session. An empty LastNodeSent means idle.
type Contact struct {
	gorm.Model
	UserID uint   `gorm:"not null;index" json:"user_id"`
	WaID   string `gorm:"not null;index" json:"wa_id"`
	Name   string `json:"name"`

	UnreadCount int `gorm:"default:0" json:"unread_count"`

	// Conversation cursor
	LastNodeSent string `json:"last_node_sent"`
	LastFlowID   uint   `gorm:"default:0" json:"last_flow_id"`

	// Relations
	User User `json:"-"`
}

// HasContinuation reports whether a pending reply is expected.
func (c *Contact) HasContinuation() bool {
	return c.LastNodeSent != ""
}

// SetContinuation persists the conversation cursor in a single write.
func (c *Contact) SetContinuation(db *gorm.DB, flowID uint, node string) error {
	c.LastFlowID = flowID
	c.LastNodeSent = node
	return db.Model(&Contact{}).Where("id = ?", c.ID).
		Updates(map[string]interface{}{
			"last_flow_id":   flowID,
			"last_node_sent": node,
		}).Error
}

// ClearContinuation resets the cursor to idle.
func (c *Contact) ClearContinuation(db *gorm.DB) error {
	return c.SetContinuation(db, 0, "")
}
