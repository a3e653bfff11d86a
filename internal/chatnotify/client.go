package chatnotify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/afoxnyc3/invoice-agent/internal/domain"
	"github.com/afoxnyc3/invoice-agent/internal/pkg/httpretry"
)

// Client posts chat notification envelopes to a single incoming-webhook
// URL. Every call is expected to be wrapped by the caller in
// breaker.Registry.Call("chat", ...), matching internal/graphmail's
// convention of not owning a breaker instance itself.
type Client struct {
	http       httpretry.HTTPDoer
	webhookURL string
}

func New(webhookURL string, timeout time.Duration) *Client {
	return &Client{
		http:       httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 5),
		webhookURL: webhookURL,
	}
}

// Send renders msg into the Adaptive Card envelope and posts it. Returns an
// error without making a request if the rendered payload is 28KB or larger,
// since the provider would just reject it.
func (c *Client) Send(ctx context.Context, msg domain.NotificationMessage) error {
	envelope := BuildEnvelope(msg)

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("chatnotify: marshal envelope: %w", err)
	}
	if len(body) >= maxPayloadBytes {
		return fmt.Errorf("chatnotify: envelope is %d bytes, exceeds %d byte limit", len(body), maxPayloadBytes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chatnotify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chatnotify: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chatnotify: post: status %d: %s", resp.StatusCode, string(data))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
