package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"waflow/config"
)

// ErrSendFailure means the Cloud API rejected an outbound send.
var ErrSendFailure = errors.New("provider rejected outbound send")

// WhatsAppSender wraps the Cloud API messages endpoint. Successful calls
// return the provider message id.
type WhatsAppSender struct {
	httpClient    *http.Client
	accessToken   string
	phoneNumberID string
	baseURL       string
	logger        *log.Logger
}

func NewWhatsAppSender(logger *log.Logger) *WhatsAppSender {
	wa := config.AppConfig.WhatsApp
	return &WhatsAppSender{
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		accessToken:   wa.AccessToken,
		phoneNumberID: wa.PhoneNumberID,
		baseURL:       wa.GraphBaseURL,
		logger:        logger,
	}
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendTemplate sends a pre-approved message template by name.
func (s *WhatsAppSender) SendTemplate(to, templateName string) (string, error) {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template": map[string]interface{}{
			"name":     templateName,
			"language": map[string]string{"code": "en"},
		},
	}
	return s.post(payload)
}

// SendText sends a plain text body.
func (s *WhatsAppSender) SendText(to, body string) (string, error) {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]interface{}{"body": body},
	}
	return s.post(payload)
}

// SendButtons sends an interactive message with quick-reply buttons. The
// provider caps reply buttons at three.
func (s *WhatsAppSender) SendButtons(to, body string, buttons []string) (string, error) {
	if len(buttons) == 0 {
		return s.SendText(to, body)
	}
	if len(buttons) > 3 {
		buttons = buttons[:3]
	}

	actionButtons := make([]map[string]interface{}, 0, len(buttons))
	for i, label := range buttons {
		actionButtons = append(actionButtons, map[string]interface{}{
			"type": "reply",
			"reply": map[string]string{
				"id":    fmt.Sprintf("btn_%d_%s", i, label),
				"title": label,
			},
		})
	}

	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type":   "button",
			"body":   map[string]string{"text": body},
			"action": map[string]interface{}{"buttons": actionButtons},
		},
	}
	return s.post(payload)
}

func (s *WhatsAppSender) post(payload map[string]interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s/messages", s.baseURL, s.phoneNumberID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSendFailure, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSendFailure, err)
	}

	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: invalid response: %v", ErrSendFailure, err)
	}
	if resp.StatusCode >= 300 || parsed.Error != nil {
		msg := resp.Status
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		s.logger.Printf("Send failed (%d): %s", resp.StatusCode, msg)
		return "", fmt.Errorf("%w: %s", ErrSendFailure, msg)
	}
	if len(parsed.Messages) == 0 {
		return "", fmt.Errorf("%w: no message id returned", ErrSendFailure)
	}
	return parsed.Messages[0].ID, nil
}
