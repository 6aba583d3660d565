package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultSMSTimeout = 15 * time.Second
	defaultSMSBaseURL = "https://www.smslocal.com/dev/bulkV2"
)

// SMSLocalClient sends SMS via the SMS Local API.
// See https://www.smslocal.com/dev/bulkV2.
type SMSLocalClient struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
}

// NewSMSLocalClient returns a client that uses the given API key and optional base URL/sender.
func NewSMSLocalClient(apiKey, baseURL, sender string) *SMSLocalClient {
	if baseURL == "" {
		baseURL = defaultSMSBaseURL
	}
	return &SMSLocalClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: defaultSMSTimeout},
	}
}

// Send sends a transactional text message to phone (digits only, with country code).
func (c *SMSLocalClient) Send(ctx context.Context, phone, message string) error {
	if c.APIKey == "" {
		return fmt.Errorf("sms: API key not configured")
	}
	body := map[string]interface{}{
		"route":   "q",
		"numbers": phone,
		"message": message,
	}
	if c.Sender != "" {
		body["sender_id"] = c.Sender
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("sms: request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}

// SMSAlerter sends alerts to a fixed operator phone.
type SMSAlerter struct {
	client *SMSLocalClient
	phone  string
}

// NewSMSAlerter returns an alerter for phone, or nil when the client has no API key or phone is empty.
func NewSMSAlerter(client *SMSLocalClient, phone string) *SMSAlerter {
	if client == nil || client.APIKey == "" || phone == "" {
		return nil
	}
	return &SMSAlerter{client: client, phone: phone}
}

func (a *SMSAlerter) Alert(ctx context.Context, message string) error {
	return a.client.Send(ctx, a.phone, message)
}
