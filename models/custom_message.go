package models

import (
	"regexp"

	"gorm.io/gorm"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// CustomMessage is a reusable message body with {{placeholder}} tokens and
// optional quick-reply buttons. Placeholders is derived from Body on every
// save, never written by callers.
type CustomMessage struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name    string   `gorm:"not null;index" json:"name"`
	Body    string   `gorm:"type:text;not null" json:"body"`
	Buttons []string `json:"buttons" gorm:"type:jsonb;serializer:json"`

	Placeholders []string `json:"placeholders" gorm:"type:jsonb;serializer:json"`

	// Relations
	User User `json:"-"`
}

// BeforeSave recomputes the placeholder list from the body.
func (cm *CustomMessage) BeforeSave(tx *gorm.DB) error {
	cm.Placeholders = ExtractPlaceholders(cm.Body)
	return nil
}

// ExtractPlaceholders returns the distinct {{token}} names in body, in order
// of first appearance.
func ExtractPlaceholders(body string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(body, -1)
	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}
