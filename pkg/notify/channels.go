package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"
)

var (
	ErrNoRecipients   = errors.New("event has no recipients")
	ErrDeliveryFailed = errors.New("delivery failed")
)

// EmailChannel delivers events over SMTP
type EmailChannel struct {
	host string
	port int
	from string
	auth smtp.Auth
}

// NewEmailChannel creates an SMTP channel. auth may be nil for open relays
// (lab setups).
func NewEmailChannel(host string, port int, from string, auth smtp.Auth) *EmailChannel {
	return &EmailChannel{host: host, port: port, from: from, auth: auth}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Deliver(_ context.Context, event *Event) error {
	if len(event.Recipients) == 0 {
		return ErrNoRecipients
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", c.from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(event.Recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n\r\n", event.Subject)
	msg.WriteString(event.Body)
	msg.WriteString("\r\n")

	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	if err := smtp.SendMail(addr, c.auth, c.from, event.Recipients, msg.Bytes()); err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}

// SMSChannel delivers events via an SMS gateway's HTTP API
type SMSChannel struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewSMSChannel creates an SMS gateway channel
func NewSMSChannel(endpoint, apiKey string) *SMSChannel {
	return &SMSChannel{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *SMSChannel) Name() string { return "sms" }

func (c *SMSChannel) Deliver(ctx context.Context, event *Event) error {
	if len(event.Recipients) == 0 {
		return ErrNoRecipients
	}
	payload := map[string]any{
		"to":   event.Recipients,
		"text": event.Subject + ": " + event.Body,
	}
	return postWebhook(ctx, c.client, c.endpoint, c.apiKey, payload)
}

// ChatChannel delivers events to a chat webhook (Slack-compatible payload)
type ChatChannel struct {
	webhookURL string
	client     *http.Client
}

// NewChatChannel creates a chat webhook channel
func NewChatChannel(webhookURL string) *ChatChannel {
	return &ChatChannel{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *ChatChannel) Name() string { return "chat" }

func (c *ChatChannel) Deliver(ctx context.Context, event *Event) error {
	text := "*" + event.Subject + "*\n" + event.Body
	if event.Critical {
		text = ":rotating_light: " + text
	}
	payload := map[string]any{"text": text}
	return postWebhook(ctx, c.client, c.webhookURL, "", payload)
}

func postWebhook(ctx context.Context, client *http.Client, url, apiKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrDeliveryFailed, resp.StatusCode)
	}
	return nil
}
