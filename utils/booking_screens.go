package utils

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"waflow/config"
	"waflow/models"
)

// Protocol actions and screens of the in-chat booking UI.
const (
	FlowActionPing     = "ping"
	FlowActionInit     = "INIT"
	FlowActionExchange = "data_exchange"

	ScreenWelcome    = "WELCOME"
	ScreenSelectDate = "SELECT_DATE"
	ScreenSelectTime = "SELECT_TIME"
	ScreenConfirm    = "CONFIRM"
	ScreenSuccess    = "SUCCESS"

	FlowProtocolVersion = "3.0"

	bookingDaysAhead = 7
)

// FlowDataRequest is one decrypted protocol request.
type FlowDataRequest struct {
	Version   string                 `json:"version"`
	Action    string                 `json:"action"`
	Screen    string                 `json:"screen,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	FlowToken string                 `json:"flow_token,omitempty"`
}

// FlowDataResponse is the next-screen payload sent back to the UI.
type FlowDataResponse struct {
	Version string                 `json:"version"`
	Screen  string                 `json:"screen,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// FlowIdentity is the customer identity threaded through the stateless
// protocol round trips. It comes exclusively from the flow token, never from
// user-editable screen fields.
type FlowIdentity struct {
	UserID uint
	WaID   string
	Name   string
}

// BuildFlowToken encodes identity as ownerId:channelId:urlEncodedName.
func BuildFlowToken(userID uint, waID, name string) string {
	return fmt.Sprintf("%d:%s:%s", userID, waID, url.QueryEscape(name))
}

// ParseFlowToken decodes a flow token. Any segment may be empty; a malformed
// token yields a zero identity rather than an error, the booking then simply
// has no owner.
func ParseFlowToken(token string) FlowIdentity {
	parts := strings.SplitN(token, ":", 3)
	var identity FlowIdentity
	if len(parts) > 0 {
		identity.UserID = ParseUint(parts[0])
	}
	if len(parts) > 1 {
		identity.WaID = parts[1]
	}
	if len(parts) > 2 {
		if name, err := url.QueryUnescape(parts[2]); err == nil {
			identity.Name = name
		} else {
			identity.Name = parts[2]
		}
	}
	return identity
}

// BookingFlow interprets decrypted protocol requests and produces the next
// screen. Every path returns a well-formed response; the provider retries
// aggressively on transport errors, so user-facing error screens are always
// preferred over failures.
type BookingFlow struct {
	DB     *gorm.DB
	Sender *WhatsAppSender
	Bus    *EventBus
	Logger *log.Logger
}

func NewBookingFlow(db *gorm.DB, sender *WhatsAppSender, bus *EventBus, logger *log.Logger) *BookingFlow {
	return &BookingFlow{DB: db, Sender: sender, Bus: bus, Logger: logger}
}

// Handle dispatches one request through the screen state machine.
func (bf *BookingFlow) Handle(req FlowDataRequest) FlowDataResponse {
	switch req.Action {
	case FlowActionPing:
		return FlowDataResponse{
			Version: FlowProtocolVersion,
			Data:    map[string]interface{}{"status": "active"},
		}
	case FlowActionInit:
		return bf.dateScreen(false, "")
	case FlowActionExchange:
		return bf.handleExchange(req)
	}
	return bf.dateScreen(false, "")
}

func (bf *BookingFlow) handleExchange(req FlowDataRequest) FlowDataResponse {
	switch req.Screen {
	case ScreenWelcome:
		return bf.dateScreen(false, "")
	case ScreenSelectDate:
		return bf.timeScreen(req)
	case ScreenSelectTime:
		return bf.confirmScreen(req)
	case ScreenConfirm:
		return bf.successScreen(req)
	}
	// Unrecognized screen, start the picker over.
	return bf.dateScreen(false, "")
}

func (bf *BookingFlow) dateScreen(hasError bool, message string) FlowDataResponse {
	data := map[string]interface{}{
		"dates":     NextDays(bookingDaysAhead, time.Now(), config.BusinessLocation()),
		"has_error": hasError,
	}
	if message != "" {
		data["error_message"] = message
	}
	return FlowDataResponse{Version: FlowProtocolVersion, Screen: ScreenSelectDate, Data: data}
}

func (bf *BookingFlow) timeScreen(req FlowDataRequest) FlowDataResponse {
	date := stringField(req.Data, "date")
	if date == "" {
		return bf.dateScreen(true, "Please choose a date")
	}

	slots, err := AvailableSlots(bf.DB, date)
	if err != nil {
		bf.Logger.Printf("Slot computation failed for %q: %v", date, err)
		return bf.dateScreen(true, "Something went wrong, please pick another date")
	}
	if len(slots) == 0 {
		return bf.dateScreen(true, "No times are available on that date")
	}

	return FlowDataResponse{
		Version: FlowProtocolVersion,
		Screen:  ScreenSelectTime,
		Data: map[string]interface{}{
			"date":  date,
			"slots": slots,
		},
	}
}

func (bf *BookingFlow) confirmScreen(req FlowDataRequest) FlowDataResponse {
	date := stringField(req.Data, "date")
	slotID := stringField(req.Data, "time")
	identity := ParseFlowToken(req.FlowToken)

	return FlowDataResponse{
		Version: FlowProtocolVersion,
		Screen:  ScreenConfirm,
		Data: map[string]interface{}{
			"date":    date,
			"time":    slotID,
			"summary": ConfirmSummary(slotID, identity.Name),
		},
	}
}

func (bf *BookingFlow) successScreen(req FlowDataRequest) FlowDataResponse {
	identity := ParseFlowToken(req.FlowToken)
	slotID := stringField(req.Data, "time")
	notes := stringField(req.Data, "notes")

	startsAt, err := slotInstant(slotID)
	if err != nil {
		bf.Logger.Printf("Invalid slot id %q on confirm: %v", slotID, err)
		return bf.dateScreen(true, "That time is no longer valid, please start over")
	}

	appointment := models.Appointment{
		ContactWaID: identity.WaID,
		ContactName: identity.Name,
		StartsAt:    startsAt,
		DurationMin: config.AppConfig.Booking.DurationMinutes,
		Status:      models.AppointmentScheduled,
		Notes:       notes,
	}
	if identity.UserID != 0 {
		appointment.UserID = &identity.UserID
	}

	if err := bf.DB.Create(&appointment).Error; err != nil {
		logrus.WithFields(logrus.Fields{
			"wa_id": identity.WaID,
			"slot":  slotID,
		}).Errorf("Failed to create appointment: %v", err)
		sentry.CaptureException(err)
		return bf.dateScreen(true, "We could not book that time, please try again")
	}

	if bf.Bus != nil {
		bf.Bus.Publish(identity.UserID, EventAppointmentCreated, appointment)
	}

	// Confirmation send is best effort, the booking stands either way.
	if identity.WaID != "" && bf.Sender != nil {
		if _, err := bf.Sender.SendText(identity.WaID, ConfirmSummary(slotID, identity.Name)); err != nil {
			bf.Logger.Printf("Confirmation send failed for %s: %v", identity.WaID, err)
		}
	}

	return FlowDataResponse{
		Version: FlowProtocolVersion,
		Screen:  ScreenSuccess,
		Data: map[string]interface{}{
			"extension_message_response": map[string]interface{}{
				"params": map[string]interface{}{
					"flow_token": req.FlowToken,
				},
			},
		},
	}
}

// ConfirmSummary formats the human-readable booking recap.
func ConfirmSummary(slotID, name string) string {
	when := slotID
	if t, err := time.ParseInLocation("2006-01-02 15:04", slotID, config.BusinessLocation()); err == nil {
		when = t.Format("Monday, Jan 2 at 03:04 PM")
	}
	if name == "" {
		return fmt.Sprintf("Your appointment is booked for %s.", when)
	}
	return fmt.Sprintf("%s, your appointment is booked for %s.", name, when)
}

// slotInstant converts a slot id back to its UTC instant.
func slotInstant(slotID string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02 15:04", slotID, config.BusinessLocation())
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func stringField(data map[string]interface{}, key string) string {
	if data == nil {
		return ""
	}
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}
