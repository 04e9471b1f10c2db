package utils

import (
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"waflow/models"
)

// cursorRecorder is an in-memory ContinuationStore for exercising cursor
// consumption without a database.
type cursorRecorder struct {
	clears int
	sets   []string
}

func (r *cursorRecorder) SetContinuation(contact *models.Contact, flowID uint, node string) error {
	contact.LastFlowID = flowID
	contact.LastNodeSent = node
	r.sets = append(r.sets, node)
	return nil
}

func (r *cursorRecorder) ClearContinuation(contact *models.Contact) error {
	contact.LastFlowID = 0
	contact.LastNodeSent = ""
	r.clears++
	return nil
}

func continuationFixture(code string, connNext, fnNext string) []models.Flow {
	return []models.Flow{{
		Model: gorm.Model{ID: 7},
		Connections: []models.Connection{
			{SourceNode: "ask_city", TargetType: models.TargetFunction, TargetName: "parse_city", NextNode: connNext},
		},
		Functions: []models.FlowFunction{
			{Name: "parse_city", Code: code, TimeoutMS: 200, NextNode: fnNext},
		},
	}}
}

func parkedContact() *models.Contact {
	return &models.Contact{LastFlowID: 7, LastNodeSent: "ask_city"}
}

func TestMatchTriggerPrefersConcreteOverAny(t *testing.T) {
	flows := []models.Flow{
		{Name: "catchall", TriggerType: models.TriggerAny},
		{Name: "pricing", TriggerType: models.TriggerIncludes, TriggerText: "price"},
	}

	// A concrete trigger beats an "any" flow even when the any flow comes first.
	flow := matchTrigger(flows, "what is the PRICE of the premium plan?")
	require.NotNil(t, flow)
	assert.Equal(t, "pricing", flow.Name)

	// Nothing concrete matches, the first any flow wins.
	flow = matchTrigger(flows, "good morning")
	require.NotNil(t, flow)
	assert.Equal(t, "catchall", flow.Name)
}

func TestMatchTriggerKinds(t *testing.T) {
	flows := []models.Flow{
		{Name: "hi", TriggerType: models.TriggerExact, TriggerText: "hello"},
		{Name: "help", TriggerType: models.TriggerStartsWith, TriggerText: "help"},
	}

	flow := matchTrigger(flows, "  HELLO  ")
	require.NotNil(t, flow)
	assert.Equal(t, "hi", flow.Name)

	flow = matchTrigger(flows, "Help me with my order")
	require.NotNil(t, flow)
	assert.Equal(t, "help", flow.Name)

	assert.Nil(t, matchTrigger(flows, "unrelated"))
}

func TestFindButtonConnection(t *testing.T) {
	flows := []models.Flow{
		{Name: "first", Connections: []models.Connection{
			{SourceNode: "welcome", TargetType: models.TargetTemplate, TargetName: "menu"},
		}},
		{Name: "second", Connections: []models.Connection{
			{SourceNode: "menu", Button: "btn_book", TargetType: models.TargetCustomMessage, TargetName: "booking_intro"},
		}},
	}

	// Exact payload match.
	flow, conn := findButtonConnection(flows, "btn_book", "Book now")
	require.NotNil(t, conn)
	assert.Equal(t, "second", flow.Name)
	assert.Equal(t, "booking_intro", conn.TargetName)

	// Label match is case-insensitive.
	_, conn = findButtonConnection(flows, "unknown", "BTN_BOOK")
	require.NotNil(t, conn)
	assert.Equal(t, "booking_intro", conn.TargetName)

	// Button-less edges never match a reply.
	_, conn = findButtonConnection(flows, "", "")
	assert.Nil(t, conn)
}

func TestFindContinuation(t *testing.T) {
	flow := &models.Flow{Connections: []models.Connection{
		{SourceNode: "ask_city", Button: "btn_skip", TargetType: models.TargetTemplate, TargetName: "menu"},
		{SourceNode: "ask_city", TargetType: models.TargetFunction, TargetName: "lookup_weather", NextNode: "weather_reply"},
		{SourceNode: "other", TargetType: models.TargetFunction, TargetName: "noop"},
	}}

	conn := findContinuation(flow, "ask_city")
	require.NotNil(t, conn)
	assert.Equal(t, "lookup_weather", conn.TargetName)

	assert.Nil(t, findContinuation(flow, "weather_reply"))
}

func TestBuildSubstitutionsWithOutputMap(t *testing.T) {
	conn := &models.Connection{OutputMap: map[string]string{
		"temp": "temperature",
		"city": "place",
	}}
	output := map[string]interface{}{
		"temp":  int64(21),
		"city":  "Pune",
		"extra": "dropped",
	}

	subs := buildSubstitutions(conn, output)
	assert.Equal(t, map[string]string{
		"temperature": "21",
		"place":       "Pune",
	}, subs)
}

func TestBuildSubstitutionsIdentity(t *testing.T) {
	conn := &models.Connection{}
	output := map[string]interface{}{
		"name":  "Ana",
		"count": int64(3),
	}

	subs := buildSubstitutions(conn, output)
	assert.Equal(t, map[string]string{
		"name":  "Ana",
		"count": "3",
	}, subs)
}

func TestRenderPlaceholders(t *testing.T) {
	values := map[string]string{"name": "Ana", "slot": "10:30 AM"}

	out := RenderPlaceholders("Hi {{name}}, see you at {{ slot }}. Ref {{missing}}.", values)
	assert.Equal(t, "Hi Ana, see you at 10:30 AM. Ref {{missing}}.", out)

	// No values means no work.
	assert.Equal(t, "Hi {{name}}", RenderPlaceholders("Hi {{name}}", nil))
}

func TestFunctionInput(t *testing.T) {
	fn := &models.FlowFunction{InputKey: "city"}
	assert.Equal(t, map[string]interface{}{"city": "Pune"}, functionInput(fn, "Pune"))

	bare := &models.FlowFunction{}
	assert.Equal(t, "Pune", functionInput(bare, "Pune"))
}

func TestResumeContinuationClearsCursorOnFailure(t *testing.T) {
	rec := &cursorRecorder{}
	fr := &FlowRouter{Cursor: rec, Logger: log.New(io.Discard, "", 0)}
	contact := parkedContact()

	flows := continuationFixture(`() => { throw new Error("bad input") }`, "reply", "")
	handled := fr.resumeContinuation(flows, contact, InboundEvent{Text: "Pune"})

	// The reply is consumed even though the function failed; nothing is sent.
	assert.True(t, handled)
	assert.Equal(t, 1, rec.clears)
	assert.False(t, contact.HasContinuation())
	assert.Empty(t, rec.sets)
}

func TestResumeContinuationClearsCursorOnTimeout(t *testing.T) {
	rec := &cursorRecorder{}
	fr := &FlowRouter{Cursor: rec, Logger: log.New(io.Discard, "", 0)}
	contact := parkedContact()

	flows := continuationFixture(`() => { while (true) {} }`, "reply", "")
	handled := fr.resumeContinuation(flows, contact, InboundEvent{Text: "Pune"})

	assert.True(t, handled)
	assert.Equal(t, 1, rec.clears)
	assert.False(t, contact.HasContinuation())
}

func TestResumeContinuationClearsCursorWithoutNextNode(t *testing.T) {
	rec := &cursorRecorder{}
	fr := &FlowRouter{Cursor: rec, Logger: log.New(io.Discard, "", 0)}
	contact := parkedContact()

	// The function succeeds but neither the edge nor the function names a
	// next node; the conversation simply ends.
	flows := continuationFixture(`() => ({ city: "Pune" })`, "", "")
	handled := fr.resumeContinuation(flows, contact, InboundEvent{Text: "Pune"})

	assert.True(t, handled)
	assert.Equal(t, 1, rec.clears)
	assert.False(t, contact.HasContinuation())
	assert.Empty(t, rec.sets)
}

func TestResumeContinuationFallsThroughWithoutFunctionEdge(t *testing.T) {
	rec := &cursorRecorder{}
	fr := &FlowRouter{Cursor: rec, Logger: log.New(io.Discard, "", 0)}

	// The cursor points at a node with no button-less function edge, so the
	// message falls through to trigger matching with the cursor intact.
	contact := &models.Contact{LastFlowID: 7, LastNodeSent: "menu"}
	flows := continuationFixture(`() => ({})`, "", "")

	handled := fr.resumeContinuation(flows, contact, InboundEvent{Text: "hello"})
	assert.False(t, handled)
	assert.Equal(t, 0, rec.clears)
	assert.True(t, contact.HasContinuation())
}

func TestResumeContinuationClearsStaleFlowCursor(t *testing.T) {
	rec := &cursorRecorder{}
	fr := &FlowRouter{Cursor: rec, Logger: log.New(io.Discard, "", 0)}

	// The flow the cursor references no longer exists (deleted or deactivated).
	contact := &models.Contact{LastFlowID: 99, LastNodeSent: "ask_city"}
	flows := continuationFixture(`() => ({})`, "", "")

	handled := fr.resumeContinuation(flows, contact, InboundEvent{Text: "hello"})
	assert.False(t, handled)
	assert.Equal(t, 1, rec.clears)
	assert.False(t, contact.HasContinuation())
}

func TestInboundEventIsButtonReply(t *testing.T) {
	assert.False(t, InboundEvent{Text: "hello"}.IsButtonReply())
	assert.True(t, InboundEvent{ButtonPayload: "btn_1"}.IsButtonReply())
	assert.True(t, InboundEvent{ButtonText: "Book"}.IsButtonReply())
}
