package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// WebhookSink POSTs each payload as JSON. The payload ID is sent as the
// Idempotency-Key header so receivers can drop retried deliveries.
type WebhookSink struct {
	url     string
	timeout time.Duration
	client  *retryablehttp.Client
}

// NewWebhookSink returns a sink posting to url, retrying failed attempts up
// to retryMax times within timeout.
func NewWebhookSink(url string, timeout time.Duration, retryMax int) *WebhookSink {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = nil // suppress retryablehttp's default logging
	return &WebhookSink{url: url, timeout: timeout, client: client}
}

// Name implements [Sink].
func (s *WebhookSink) Name() string { return "webhook" }

// Timeout returns the configured delivery timeout.
func (s *WebhookSink) Timeout() time.Duration { return s.timeout }

// Send posts p to the webhook URL.
func (s *WebhookSink) Send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.url, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", p.ID)
	req.Header.Set("User-Agent", "presencewatch")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
