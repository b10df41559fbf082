package events

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/TimurManjosov/gorules/internal/rules"
)

// maxResponseBodySize limits how much of an error response is kept (1KB).
const maxResponseBodySize = 1024

// WebhookSink POSTs each event as JSON to a fixed URL, signed with
// HMAC-SHA256 when a secret is configured.
type WebhookSink struct {
	url    string
	secret string
	client *http.Client
}

// NewWebhookSink creates a sink posting to url.
func NewWebhookSink(url, secret string, client *http.Client) *WebhookSink {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &WebhookSink{url: url, secret: secret, client: client}
}

func (w *WebhookSink) Name() string { return "webhook" }

// Send delivers ev. Any non-2xx response is an error.
func (w *WebhookSink) Send(ctx context.Context, ev Event) error {
	payload, err := rules.EncodeJSON(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gorules-Event", ev.Type)
	req.Header.Set("X-Gorules-Delivery", ev.ID)
	if w.secret != "" {
		req.Header.Set("X-Gorules-Signature", ComputeHMAC(payload, w.secret))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}

func (w *WebhookSink) Close() error {
	w.client.CloseIdleConnections()
	return nil
}
