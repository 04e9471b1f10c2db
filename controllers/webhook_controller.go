package controller

import (
	"errors"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"waflow/config"
	"waflow/models"
	"waflow/utils"
)

type WebhookController struct {
	DB     *gorm.DB
	Router *utils.FlowRouter
	Bus    *utils.EventBus
	Logger *log.Logger
}

func NewWebhookController(db *gorm.DB, router *utils.FlowRouter, bus *utils.EventBus, logger *log.Logger) *WebhookController {
	return &WebhookController{DB: db, Router: router, Bus: bus, Logger: logger}
}

// webhookPayload mirrors the provider's entry/change/value envelope.
type webhookPayload struct {
	Entry []struct {
		ID      string `json:"id"`
		Changes []struct {
			Value webhookValue `json:"value"`
			Field string       `json:"field"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookValue struct {
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []webhookMessage `json:"messages"`
	Statuses []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"statuses"`
}

type webhookMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Button *struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
	} `json:"interactive"`
}

// VerifyWebhook answers the provider's subscription handshake.
func (wc *WebhookController) VerifyWebhook(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == config.AppConfig.WhatsApp.VerifyToken {
		return c.SendString(challenge)
	}
	return c.SendStatus(fiber.StatusForbidden)
}

// HandleWebhook ingests provider deliveries. It always acknowledges with 200;
// anything that goes wrong internally is logged and reported, never bubbled,
// because the provider retries hard failures aggressively.
func (wc *WebhookController) HandleWebhook(c *fiber.Ctx) error {
	defer func() {
		if r := recover(); r != nil {
			wc.Logger.Printf("Recovered from webhook panic: %v", r)
			sentry.CurrentHub().Recover(r)
		}
	}()

	var payload webhookPayload
	if err := c.BodyParser(&payload); err != nil {
		wc.Logger.Printf("Unparseable webhook payload: %v", err)
		return c.JSON(fiber.Map{"status": "ignored"})
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			wc.processValue(change.Value)
		}
	}

	return c.JSON(fiber.Map{"status": "received"})
}

func (wc *WebhookController) processValue(value webhookValue) {
	names := make(map[string]string, len(value.Contacts))
	for _, contact := range value.Contacts {
		names[contact.WaID] = contact.Profile.Name
	}

	for _, msg := range value.Messages {
		wc.processMessage(msg, names[msg.From])
	}

	for _, status := range value.Statuses {
		wc.processStatus(status.ID, status.Status)
	}
}

func (wc *WebhookController) processMessage(msg webhookMessage, profileName string) {
	// Redelivery of an already-stored provider message id is a no-op.
	var existing models.InboundMessage
	err := wc.DB.Where("provider_message_id = ?", msg.ID).First(&existing).Error
	if err == nil {
		wc.Logger.Printf("Duplicate webhook message %s ignored", msg.ID)
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		wc.Logger.Printf("Dedup lookup failed for %s: %v", msg.ID, err)
		return
	}

	contact, err := wc.findOrCreateContact(msg.From, profileName)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"wa_id":      msg.From,
			"message_id": msg.ID,
		}).Errorf("Failed to resolve contact: %v", err)
		sentry.CaptureException(err)
		return
	}

	ev := inboundEventFromMessage(msg)

	inbound := models.InboundMessage{
		UserID:            contact.UserID,
		ContactID:         contact.ID,
		ProviderMessageID: msg.ID,
		Type:              msg.Type,
		Body:              ev.Text,
		ButtonPayload:     ev.ButtonPayload,
		ButtonText:        ev.ButtonText,
		Timestamp:         parseUnixSeconds(msg.Timestamp),
	}
	if err := wc.DB.Create(&inbound).Error; err != nil {
		// A concurrent delivery may have won the unique-index race; either way
		// the message is stored exactly once.
		wc.Logger.Printf("Failed to store inbound message %s: %v", msg.ID, err)
		return
	}

	if err := wc.DB.Model(&models.Contact{}).Where("id = ?", contact.ID).
		Update("unread_count", gorm.Expr("unread_count + 1")).Error; err != nil {
		wc.Logger.Printf("Failed to bump unread count for contact %d: %v", contact.ID, err)
	}

	wc.Bus.Publish(contact.UserID, utils.EventInboundMessage, inbound)

	wc.Router.HandleInbound(contact, ev)
}

func (wc *WebhookController) processStatus(providerMessageID, status string) {
	if providerMessageID == "" || status == "" {
		return
	}
	result := wc.DB.Model(&models.OutboundMessage{}).
		Where("provider_message_id = ?", providerMessageID).
		Update("status", status)
	if result.Error != nil {
		wc.Logger.Printf("Failed to update delivery status for %s: %v", providerMessageID, result.Error)
		return
	}
	if result.RowsAffected > 0 {
		var outbound models.OutboundMessage
		if err := wc.DB.Where("provider_message_id = ?", providerMessageID).First(&outbound).Error; err == nil {
			wc.Bus.Publish(outbound.UserID, utils.EventDeliveryStatus, fiber.Map{
				"provider_message_id": providerMessageID,
				"status":              status,
			})
		}
	}
}

// findOrCreateContact creates the contact on their first inbound message.
// Contacts created this way belong to the deployment's single configured
// operator; with one phone number per deployment the first user owns the inbox.
func (wc *WebhookController) findOrCreateContact(waID, name string) (*models.Contact, error) {
	var contact models.Contact
	err := wc.DB.Where("wa_id = ?", waID).First(&contact).Error
	if err == nil {
		if name != "" && contact.Name != name {
			wc.DB.Model(&contact).Update("name", name)
			contact.Name = name
		}
		return &contact, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var owner models.User
	if err := wc.DB.Order("id ASC").First(&owner).Error; err != nil {
		return nil, err
	}

	contact = models.Contact{
		UserID: owner.ID,
		WaID:   waID,
		Name:   name,
	}
	if err := wc.DB.Create(&contact).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}

func inboundEventFromMessage(msg webhookMessage) utils.InboundEvent {
	var ev utils.InboundEvent
	switch {
	case msg.Text != nil:
		ev.Text = msg.Text.Body
	case msg.Button != nil:
		ev.ButtonPayload = msg.Button.Payload
		ev.ButtonText = msg.Button.Text
	case msg.Interactive != nil && msg.Interactive.ButtonReply != nil:
		ev.ButtonPayload = msg.Interactive.ButtonReply.ID
		ev.ButtonText = msg.Interactive.ButtonReply.Title
	}
	return ev
}

func parseUnixSeconds(s string) time.Time {
	var secs int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return time.Now()
		}
		secs = secs*10 + int64(r-'0')
	}
	if secs == 0 {
		return time.Now()
	}
	return time.Unix(secs, 0)
}
