package controller

import (
	"encoding/base64"
	"encoding/json"
	"log"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"waflow/utils"
)

type BookingFlowController struct {
	DB      *gorm.DB
	Booking *utils.BookingFlow
	Logger  *log.Logger
}

func NewBookingFlowController(db *gorm.DB, booking *utils.BookingFlow, logger *log.Logger) *BookingFlowController {
	return &BookingFlowController{DB: db, Booking: booking, Logger: logger}
}

// encryptedRequest is the provider's envelope around a booking-UI call.
type encryptedRequest struct {
	EncryptedFlowData string `json:"encrypted_flow_data"`
	EncryptedAESKey   string `json:"encrypted_aes_key"`
	InitialVector     string `json:"initial_vector"`
}

// HandleFlowRequest terminates the booking-UI protocol. Requests arrive
// either wrapped in the crypto envelope or, in test mode, as plaintext; the
// response mirrors whichever form the request used. Whatever happens inside,
// the provider gets a well-formed response back.
func (bc *BookingFlowController) HandleFlowRequest(c *fiber.Ctx) error {
	var envelope encryptedRequest
	if err := json.Unmarshal(c.Body(), &envelope); err == nil && envelope.EncryptedFlowData != "" {
		return bc.handleEncrypted(c, envelope)
	}

	// Plaintext fallback for unencrypted test-mode requests
	var req utils.FlowDataRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		bc.Logger.Printf("Unparseable flow request: %v", err)
		return c.JSON(utils.FlowDataResponse{Version: utils.FlowProtocolVersion})
	}
	return c.JSON(bc.Booking.Handle(req))
}

func (bc *BookingFlowController) handleEncrypted(c *fiber.Ctx, envelope encryptedRequest) error {
	priv, err := utils.LoadFlowPrivateKey()
	if err != nil {
		// Configuration failure; nothing can be decrypted or answered in kind
		logrus.Error("Booking flow request with no private key configured")
		sentry.CaptureException(err)
		return c.SendStatus(fiber.StatusUnprocessableEntity)
	}

	key, err := utils.UnwrapKey(envelope.EncryptedAESKey, priv)
	if err != nil {
		bc.Logger.Printf("Key unwrap failed: %v", err)
		return c.SendStatus(fiber.StatusUnprocessableEntity)
	}

	plaintext, err := utils.OpenEnvelope(envelope.EncryptedFlowData, envelope.InitialVector, key)
	if err != nil {
		bc.Logger.Printf("Envelope decryption failed: %v", err)
		return c.SendStatus(fiber.StatusUnprocessableEntity)
	}

	iv, err := base64.StdEncoding.DecodeString(envelope.InitialVector)
	if err != nil {
		return c.SendStatus(fiber.StatusUnprocessableEntity)
	}

	var req utils.FlowDataRequest
	response := utils.FlowDataResponse{Version: utils.FlowProtocolVersion}
	if err := json.Unmarshal(plaintext, &req); err != nil {
		bc.Logger.Printf("Unparseable decrypted flow payload: %v", err)
	} else {
		response = bc.Booking.Handle(req)
	}

	// The response is sealed with the same call's key; its IV is the request
	// IV inverted and is not transmitted.
	sealed, err := utils.SealEnvelope(response, key, iv)
	if err != nil {
		bc.Logger.Printf("Failed to seal flow response: %v", err)
		sentry.CaptureException(err)
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.SendString(sealed)
}
