package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlowTokenRoundTrip(t *testing.T) {
	token := BuildFlowToken(42, "15551234567", "Ana María: QA")

	identity := ParseFlowToken(token)
	assert.Equal(t, uint(42), identity.UserID)
	assert.Equal(t, "15551234567", identity.WaID)
	// The name survives even though it contains the token separator.
	assert.Equal(t, "Ana María: QA", identity.Name)
}

func TestParseFlowTokenPartial(t *testing.T) {
	identity := ParseFlowToken("0:15551234567:")
	assert.Equal(t, uint(0), identity.UserID)
	assert.Equal(t, "15551234567", identity.WaID)
	assert.Equal(t, "", identity.Name)
}

func TestParseFlowTokenMalformed(t *testing.T) {
	// Garbage yields a zero identity, never an error.
	assert.Equal(t, FlowIdentity{}, ParseFlowToken(""))
	assert.Equal(t, FlowIdentity{WaID: "b"}, ParseFlowToken("not-a-number:b"))
}

func TestHandlePing(t *testing.T) {
	bf := &BookingFlow{}

	resp := bf.Handle(FlowDataRequest{Action: FlowActionPing})
	assert.Equal(t, FlowProtocolVersion, resp.Version)
	assert.Equal(t, "", resp.Screen)
	assert.Equal(t, "active", resp.Data["status"])
}

func TestConfirmSummary(t *testing.T) {
	// 2026-03-02 is a Monday.
	summary := ConfirmSummary("2026-03-02 10:30", "Ana")
	assert.Equal(t, "Ana, your appointment is booked for Monday, Mar 2 at 10:30 AM.", summary)

	summary = ConfirmSummary("2026-03-02 14:00", "")
	assert.Equal(t, "Your appointment is booked for Monday, Mar 2 at 02:00 PM.", summary)

	// An unparseable slot id falls back to the raw value.
	summary = ConfirmSummary("soon", "Ana")
	assert.Equal(t, "Ana, your appointment is booked for soon.", summary)
}
