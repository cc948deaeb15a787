package alert

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	// SignatureHeader carries the HMAC-SHA256 of the request body.
	SignatureHeader = "X-Signature-256"
	// EventHeader names the payload type.
	EventHeader = "X-Hotlist-Event"
	// StatusHeader carries the run status.
	StatusHeader = "X-Hotlist-Run-Status"
	// DeliveryHeader is the run ID; one run delivers at most one digest.
	DeliveryHeader = "X-Hotlist-Delivery"
)

// EventDigest is the event name of a daily digest delivery.
const EventDigest = "hotlist.digest"

// WebhookPayload is the JSON body posted by Webhook.
type WebhookPayload struct {
	Event  string    `json:"event"`
	SentAt time.Time `json:"sent_at"`
	Digest *Digest   `json:"digest"`
}

// Webhook posts the digest as JSON to a generic HTTP endpoint.
type Webhook struct {
	client *http.Client
	url    string
	secret string
	now    func() time.Time
}

// NewWebhook creates a new generic webhook notifier.
func NewWebhook(url, secret string) *Webhook {
	return &Webhook{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    url,
		secret: secret,
		now:    time.Now,
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Send(ctx context.Context, d *Digest) error {
	body, err := json.Marshal(WebhookPayload{Event: EventDigest, SentAt: w.now().UTC(), Digest: d})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "hotlist/1.0")
	req.Header.Set(EventHeader, EventDigest)
	req.Header.Set(StatusHeader, d.Status)
	if d.RunID != "" {
		req.Header.Set(DeliveryHeader, d.RunID)
	}

	if w.secret != "" {
		req.Header.Set(SignatureHeader, Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}

	return nil
}

// Sign returns the signature header value of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
