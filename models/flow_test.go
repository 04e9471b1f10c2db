package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesTrigger(t *testing.T) {
	tests := []struct {
		name        string
		triggerType string
		triggerText string
		input       string
		want        bool
	}{
		{"exact ignores case and padding", TriggerExact, "hello", "  HELLO ", true},
		{"exact rejects superset", TriggerExact, "hello", "hello there", false},
		{"includes matches substring", TriggerIncludes, "price", "What is the PRICE?", true},
		{"includes rejects absent", TriggerIncludes, "price", "hello", false},
		{"starts_with matches prefix", TriggerStartsWith, "help", "Help me please", true},
		{"starts_with rejects infix", TriggerStartsWith, "help", "I need help", false},
		{"any matches everything", TriggerAny, "", "anything at all", true},
		{"empty type behaves as any", "", "", "anything", true},
		{"unknown type never matches", "regex", ".*", "anything", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := Flow{TriggerType: tt.triggerType, TriggerText: tt.triggerText}
			assert.Equal(t, tt.want, flow.MatchesTrigger(tt.input))
		})
	}
}

func TestFindConnectionLastWriteWins(t *testing.T) {
	flow := Flow{Connections: []Connection{
		{SourceNode: "menu", Button: "btn_1", TargetName: "old_target"},
		{SourceNode: "menu", Button: "btn_2", TargetName: "other"},
		{SourceNode: "menu", Button: "btn_1", TargetName: "new_target"},
	}}

	conn := flow.FindConnection("menu", "btn_1")
	require.NotNil(t, conn)
	assert.Equal(t, "new_target", conn.TargetName)

	assert.Nil(t, flow.FindConnection("menu", "btn_3"))
}

func TestFindFunction(t *testing.T) {
	flow := Flow{Functions: []FlowFunction{
		{Name: "lookup"},
		{Name: "score"},
	}}

	fn := flow.FindFunction("score")
	require.NotNil(t, fn)
	assert.Equal(t, "score", fn.Name)
	assert.Nil(t, flow.FindFunction("missing"))
}

func TestClampedTimeoutMS(t *testing.T) {
	assert.Equal(t, FunctionTimeoutMinMS, (&FlowFunction{TimeoutMS: 0}).ClampedTimeoutMS())
	assert.Equal(t, FunctionTimeoutMinMS, (&FlowFunction{TimeoutMS: 10}).ClampedTimeoutMS())
	assert.Equal(t, 5000, (&FlowFunction{TimeoutMS: 5000}).ClampedTimeoutMS())
	assert.Equal(t, FunctionTimeoutMaxMS, (&FlowFunction{TimeoutMS: 60000}).ClampedTimeoutMS())
}
