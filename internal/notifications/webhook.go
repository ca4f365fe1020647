package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"facelane/internal/config"
	"facelane/internal/services"
)

const defaultUserAgent = "facelane-webhook/1"

// WebhookSender posts payloads to subscriber URLs.
type WebhookSender struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

// NewWebhookSender builds a sender from the webhook config section.
func NewWebhookSender(cfg *config.Config) *WebhookSender {
	timeout := time.Duration(cfg.Webhook.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	agent := strings.TrimSpace(cfg.Webhook.UserAgent)
	if agent == "" {
		agent = defaultUserAgent
	}
	return &WebhookSender{
		client:    &http.Client{Timeout: timeout},
		userAgent: agent,
		timeout:   timeout,
	}
}

// Send posts payload to url. Any failure matches services.ErrNotificationDelivery.
func (s *WebhookSender) Send(ctx context.Context, url string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return services.Wrap(services.ErrNotificationDelivery, "webhook", "build request", "invalid webhook url", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Facelane-Event", string(payload.Event))

	resp, err := s.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrNotificationDelivery, "webhook", "send", "webhook request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return services.Wrap(services.ErrNotificationDelivery, "webhook", "send",
			fmt.Sprintf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Timeout returns the per-delivery bound.
func (s *WebhookSender) Timeout() time.Duration { return s.timeout }
