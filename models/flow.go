package models

import (
	"strings"

	"gorm.io/gorm"
)

// Trigger match types
const (
	TriggerExact      = "exact"
	TriggerIncludes   = "includes"
	TriggerStartsWith = "starts_with"
	TriggerAny        = "any"
)

// Connection target types
const (
	TargetTemplate      = "template"
	TargetCustomMessage = "custom_message"
	TargetFunction      = "function"
)

// Function timeout bounds in milliseconds
const (
	FunctionTimeoutMinMS = 100
	FunctionTimeoutMaxMS = 20000
)

// Flow is one automation definition: a trigger plus a graph of node
// connections and the functions those connections may invoke.
type Flow struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name        string `gorm:"not null" json:"name"`
	TriggerType string `gorm:"default:'any'" json:"trigger_type"` // exact, includes, starts_with, any
	TriggerText string `json:"trigger_text"`
	FirstNode   string `json:"first_node"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`

	// Graph structure stored as JSON
	Connections []Connection   `json:"connections" gorm:"type:jsonb;serializer:json"`
	Functions   []FlowFunction `json:"functions" gorm:"type:jsonb;serializer:json"`

	// Relations
	User User `json:"-"`
}

// Connection is a directed edge in the conversation graph. SourceNode plus
// Button identifies the edge; the last connection written for a given pair
// wins.
type Connection struct {
	SourceNode string            `json:"source_node"`
	Button     string            `json:"button,omitempty"`
	TargetType string            `json:"target_type"` // template, custom_message, function
	TargetName string            `json:"target_name"`
	NextNode   string            `json:"next_node,omitempty"`  // node sent after a function target completes
	OutputMap  map[string]string `json:"output_map,omitempty"` // function output key -> placeholder name
}

// FlowFunction is one unit of user-authored server logic embedded in a flow.
type FlowFunction struct {
	Name      string `json:"name"`
	Code      string `json:"code"`
	InputKey  string `json:"input_key,omitempty"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
	NextNode  string `json:"next_node,omitempty"`
}

// FindConnection returns the connection matching (sourceNode, button). Later
// entries shadow earlier ones so a replaced edge takes effect without
// compacting the slice.
func (f *Flow) FindConnection(sourceNode, button string) *Connection {
	var found *Connection
	for i := range f.Connections {
		conn := &f.Connections[i]
		if conn.SourceNode == sourceNode && conn.Button == button {
			found = conn
		}
	}
	return found
}

// FindFunction looks up an embedded function by name.
func (f *Flow) FindFunction(name string) *FlowFunction {
	for i := range f.Functions {
		if f.Functions[i].Name == name {
			return &f.Functions[i]
		}
	}
	return nil
}

// MatchesTrigger reports whether the inbound text satisfies this flow's
// trigger condition. Matching is case-insensitive. An "any" trigger (or a
// missing one) matches everything.
func (f *Flow) MatchesTrigger(text string) bool {
	switch f.TriggerType {
	case TriggerExact:
		return strings.EqualFold(strings.TrimSpace(text), strings.TrimSpace(f.TriggerText))
	case TriggerIncludes:
		return strings.Contains(strings.ToLower(text), strings.ToLower(f.TriggerText))
	case TriggerStartsWith:
		return strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), strings.ToLower(f.TriggerText))
	case TriggerAny, "":
		return true
	}
	return false
}

// ClampedTimeoutMS bounds the function timeout to the allowed window.
func (fn *FlowFunction) ClampedTimeoutMS() int {
	if fn.TimeoutMS < FunctionTimeoutMinMS {
		return FunctionTimeoutMinMS
	}
	if fn.TimeoutMS > FunctionTimeoutMaxMS {
		return FunctionTimeoutMaxMS
	}
	return fn.TimeoutMS
}
