package utils

import (
	"log"
	"strings"

	"gorm.io/gorm"

	"waflow/models"
)

// InboundEvent is the router's view of one customer message.
type InboundEvent struct {
	Text          string
	ButtonPayload string
	ButtonText    string
}

// IsButtonReply reports whether the event is a quick-reply response.
func (ev InboundEvent) IsButtonReply() bool {
	return ev.ButtonPayload != "" || ev.ButtonText != ""
}

// ContinuationStore persists the contact conversation cursor. The indirection
// exists so the routing rules around cursor consumption can be exercised
// without a database.
type ContinuationStore interface {
	SetContinuation(contact *models.Contact, flowID uint, node string) error
	ClearContinuation(contact *models.Contact) error
}

type dbContinuationStore struct {
	db *gorm.DB
}

func (s dbContinuationStore) SetContinuation(contact *models.Contact, flowID uint, node string) error {
	return contact.SetContinuation(s.db, flowID, node)
}

func (s dbContinuationStore) ClearContinuation(contact *models.Contact) error {
	return contact.ClearContinuation(s.db)
}

// FlowRouter decides what automated action, if any, follows an inbound
// customer message. Errors while resolving or sending are logged and swallowed
// so the webhook acknowledgment is never affected.
type FlowRouter struct {
	DB     *gorm.DB
	Sender *WhatsAppSender
	Bus    *EventBus
	Cursor ContinuationStore
	Logger *log.Logger
}

func NewFlowRouter(db *gorm.DB, sender *WhatsAppSender, bus *EventBus, logger *log.Logger) *FlowRouter {
	return &FlowRouter{DB: db, Sender: sender, Bus: bus, Cursor: dbContinuationStore{db: db}, Logger: logger}
}

// HandleInbound runs the routing algorithm for one message:
//  1. button replies resolve against every flow's (sourceNode, button) edges
//  2. a pending continuation feeds the reply into its function node
//  3. otherwise trigger matching starts a fresh conversation
//  4. no rule applying means silence, which is a valid outcome
func (fr *FlowRouter) HandleInbound(contact *models.Contact, ev InboundEvent) {
	var flows []models.Flow
	if err := fr.DB.Where("user_id = ? AND is_active = ?", contact.UserID, true).
		Order("id ASC").Find(&flows).Error; err != nil {
		fr.Logger.Printf("Failed to load flows for user %d: %v", contact.UserID, err)
		return
	}
	if len(flows) == 0 {
		return
	}

	if ev.IsButtonReply() {
		if flow, conn := findButtonConnection(flows, ev.ButtonPayload, ev.ButtonText); conn != nil {
			fr.deliverTarget(flow, conn, contact, ev, nil)
		}
		return
	}

	if contact.HasContinuation() {
		if fr.resumeContinuation(flows, contact, ev) {
			return
		}
	}

	flow := matchTrigger(flows, ev.Text)
	if flow == nil || flow.FirstNode == "" {
		return
	}
	fr.sendNode(flow, flow.FirstNode, contact, nil)
}

// resumeContinuation feeds the reply into the function node the conversation
// is parked on. Returns false when no function edge hangs off the cursor so
// the caller can fall through to trigger matching. The cursor is cleared
// whether the function succeeds or not; a function node consumes at most one
// reply.
func (fr *FlowRouter) resumeContinuation(flows []models.Flow, contact *models.Contact, ev InboundEvent) bool {
	flow := flowByID(flows, contact.LastFlowID)
	if flow == nil {
		if err := fr.Cursor.ClearContinuation(contact); err != nil {
			fr.Logger.Printf("Failed to clear continuation for contact %d: %v", contact.ID, err)
		}
		return false
	}

	conn := findContinuation(flow, contact.LastNodeSent)
	if conn == nil {
		return false
	}

	if err := fr.Cursor.ClearContinuation(contact); err != nil {
		fr.Logger.Printf("Failed to clear continuation for contact %d: %v", contact.ID, err)
	}

	fn := flow.FindFunction(conn.TargetName)
	if fn == nil {
		fr.Logger.Printf("Flow %d references unknown function %q", flow.ID, conn.TargetName)
		return true
	}

	input := functionInput(fn, ev.Text)
	fnContext := map[string]interface{}{
		"userId":    contact.UserID,
		"contactId": contact.ID,
		"waId":      contact.WaID,
	}

	result, err := RunFlowFunction(fn, input, fnContext)
	if err != nil {
		fr.Logger.Printf("Function %q failed for contact %d: %v", fn.Name, contact.ID, err)
		return true
	}

	next := conn.NextNode
	if next == "" {
		next = fn.NextNode
	}
	if next == "" {
		return true
	}

	fr.sendNode(flow, next, contact, buildSubstitutions(conn, result.Output))
	return true
}

// deliverTarget resolves one connection target. A function target behaves
// like a continuation hit with the button text as input.
func (fr *FlowRouter) deliverTarget(flow *models.Flow, conn *models.Connection, contact *models.Contact, ev InboundEvent, subs map[string]string) {
	switch conn.TargetType {
	case models.TargetTemplate, models.TargetCustomMessage:
		fr.sendNode(flow, conn.TargetName, contact, subs)
	case models.TargetFunction:
		fn := flow.FindFunction(conn.TargetName)
		if fn == nil {
			fr.Logger.Printf("Flow %d references unknown function %q", flow.ID, conn.TargetName)
			return
		}
		input := functionInput(fn, ev.ButtonText)
		fnContext := map[string]interface{}{
			"userId":    contact.UserID,
			"contactId": contact.ID,
			"waId":      contact.WaID,
		}
		result, err := RunFlowFunction(fn, input, fnContext)
		if err != nil {
			fr.Logger.Printf("Function %q failed for contact %d: %v", fn.Name, contact.ID, err)
			return
		}
		next := conn.NextNode
		if next == "" {
			next = fn.NextNode
		}
		if next != "" {
			fr.sendNode(flow, next, contact, buildSubstitutions(conn, result.Output))
		}
	default:
		fr.Logger.Printf("Flow %d has connection with unknown target type %q", flow.ID, conn.TargetType)
	}
}

// sendNode sends one node by name. A name owned by a custom message renders
// that message; anything else is treated as a provider template. Every
// successful send advances the contact's conversation cursor.
func (fr *FlowRouter) sendNode(flow *models.Flow, node string, contact *models.Contact, subs map[string]string) {
	var (
		providerID string
		kind       string
		body       string
		err        error
	)

	var custom models.CustomMessage
	lookupErr := fr.DB.Where("user_id = ? AND name = ?", contact.UserID, node).First(&custom).Error
	switch {
	case lookupErr == nil:
		kind = "buttons"
		body = RenderPlaceholders(custom.Body, subs)
		providerID, err = fr.Sender.SendButtons(contact.WaID, body, custom.Buttons)
	case lookupErr == gorm.ErrRecordNotFound:
		kind = "template"
		body = node
		providerID, err = fr.Sender.SendTemplate(contact.WaID, node)
	default:
		fr.Logger.Printf("Custom message lookup failed for node %q: %v", node, lookupErr)
		return
	}
	if err != nil {
		fr.Logger.Printf("Send of node %q to contact %d failed: %v", node, contact.ID, err)
		return
	}

	outbound := models.OutboundMessage{
		UserID:            contact.UserID,
		ContactID:         contact.ID,
		ProviderMessageID: providerID,
		Kind:              kind,
		Node:              node,
		Body:              body,
		Status:            models.DeliverySent,
	}
	if err := fr.DB.Create(&outbound).Error; err != nil {
		fr.Logger.Printf("Failed to record outbound message: %v", err)
	}

	if err := fr.Cursor.SetContinuation(contact, flow.ID, node); err != nil {
		fr.Logger.Printf("Failed to update continuation for contact %d: %v", contact.ID, err)
	}
}

// --- pure routing helpers -------------------------------------------------

// matchTrigger prefers flows with a concrete trigger condition and falls back
// to the first "any" flow.
func matchTrigger(flows []models.Flow, text string) *models.Flow {
	var anyFlow *models.Flow
	for i := range flows {
		flow := &flows[i]
		if flow.TriggerType == models.TriggerAny || flow.TriggerType == "" {
			if anyFlow == nil {
				anyFlow = flow
			}
			continue
		}
		if flow.MatchesTrigger(text) {
			return flow
		}
	}
	return anyFlow
}

// findButtonConnection scans all flows for an edge matching the reply payload
// or its visible text. First match wins; flow order decides ties.
func findButtonConnection(flows []models.Flow, payload, label string) (*models.Flow, *models.Connection) {
	for i := range flows {
		flow := &flows[i]
		for j := range flow.Connections {
			conn := &flow.Connections[j]
			if conn.Button == "" {
				continue
			}
			if conn.Button == payload || strings.EqualFold(conn.Button, label) {
				return flow, conn
			}
		}
	}
	return nil, nil
}

// findContinuation locates the button-less function edge hanging off the last
// sent node.
func findContinuation(flow *models.Flow, lastNode string) *models.Connection {
	for i := range flow.Connections {
		conn := &flow.Connections[i]
		if conn.SourceNode == lastNode && conn.Button == "" && conn.TargetType == models.TargetFunction {
			return conn
		}
	}
	return nil
}

func flowByID(flows []models.Flow, id uint) *models.Flow {
	for i := range flows {
		if flows[i].ID == id {
			return &flows[i]
		}
	}
	return nil
}

func functionInput(fn *models.FlowFunction, text string) interface{} {
	if fn.InputKey != "" {
		return map[string]interface{}{fn.InputKey: text}
	}
	return text
}

// buildSubstitutions maps function output to placeholder values. An explicit
// OutputMap on the connection wins; otherwise each output key becomes its own
// placeholder.
func buildSubstitutions(conn *models.Connection, output map[string]interface{}) map[string]string {
	subs := make(map[string]string, len(output))
	if len(conn.OutputMap) > 0 {
		for outputKey, placeholder := range conn.OutputMap {
			if v, ok := output[outputKey]; ok {
				subs[placeholder] = stringifyLogValue(v)
			}
		}
		return subs
	}
	for k, v := range output {
		subs[k] = stringifyLogValue(v)
	}
	return subs
}

// RenderPlaceholders substitutes {{token}} occurrences in body. Unknown
// tokens are left untouched.
func RenderPlaceholders(body string, values map[string]string) string {
	if len(values) == 0 {
		return body
	}
	return placeholderReplacer(body, values)
}

func placeholderReplacer(body string, values map[string]string) string {
	out := body
	for k, v := range values {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
		out = strings.ReplaceAll(out, "{{ "+k+" }}", v)
	}
	return out
}
