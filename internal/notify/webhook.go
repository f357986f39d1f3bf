package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WebhookMailer hands notifications to an HTTP mail relay.
type WebhookMailer struct {
	BaseURL string
	From    string
	HTTP    *http.Client
}

// NewWebhookMailer creates a relay client with a bounded timeout.
func NewWebhookMailer(baseURL, from string) *WebhookMailer {
	return &WebhookMailer{
		BaseURL: strings.TrimRight(baseURL, "/"),
		From:    from,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the message to the relay's /send endpoint.
func (m *WebhookMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	body, err := json.Marshal(struct {
		From string `json:"from"`
		Message
	}{From: m.From, Message: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", msg.ID)

	resp, err := m.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("mail relay request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("mail relay error %s: %s", resp.Status, string(bodyBytes))
	}
	return nil
}

// Health checks whether the relay is reachable.
func (m *WebhookMailer) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := m.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("mail relay unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("mail relay unhealthy: %s", resp.Status)
	}
	return nil
}
