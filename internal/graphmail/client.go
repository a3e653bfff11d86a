// Package graphmail is the C5/C7 collaborator for the mail provider: the
// Notification Worker uses it to fetch, download, and mark mail read; the
// Subscription Manager uses it to create and renew push subscriptions.
// Shaped like an internal/ses client (a thin struct wrapping a generated
// SDK client) but built over plain net/http + httpretry
// instead of an AWS service client, since the mail provider here
// is a webhook-push REST API (subscriptionId/resource/clientState — the
// same shape the provider's own wire format echoes), not an AWS service.
package graphmail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/afoxnyc3/invoice-agent/internal/pkg/httpretry"
)

// MailItem is the subset of the provider's message resource the pipeline
// needs: whether it's unread, whether it carries an attachment, and enough
// metadata to build a RawMail.
type MailItem struct {
	ID                string
	Sender            string
	Subject           string
	IsRead            bool
	HasAttachment     bool
	ReceivedAt        time.Time
	AttachmentID      string
	AttachmentName    string
}

// Subscription is the provider-side push-subscription resource.
type Subscription struct {
	ID         string
	Resource   string
	ExpiresAt  time.Time
	ClientState string
}

// Client talks to the mail provider's REST API. Every call is expected to
// be wrapped by the caller in breaker.Registry.Call("graph", ...) — this
// type itself does not own a breaker instance — the breaker stays a
// process-wide collaborator rather than one embedded per client.
type Client struct {
	http    httpretry.HTTPDoer
	baseURL string
	token   string
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		http:    httpretry.NewRetryClient(&http.Client{Timeout: timeout}, 5),
		baseURL: baseURL,
		token:   token,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("graphmail: marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("graphmail: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("graphmail: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("graphmail: %s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("graphmail: decode response from %s %s: %w", method, path, err)
	}
	return nil
}

// GetMessage fetches a single mail item by id.
func (c *Client) GetMessage(ctx context.Context, messageID string) (MailItem, error) {
	var item messageResource
	if err := c.do(ctx, http.MethodGet, "/me/messages/"+messageID, nil, &item); err != nil {
		return MailItem{}, err
	}
	return item.toMailItem(), nil
}

// ListUnreadMessages fetches up to pageSize unread messages from the
// ingest mailbox, for the Timer Poller's "bounded pages" fallback sweep.
func (c *Client) ListUnreadMessages(ctx context.Context, pageSize int) ([]MailItem, error) {
	path := fmt.Sprintf("/me/mailFolders/inbox/messages?$filter=isRead eq false&$top=%d", pageSize)
	var list messageListResource
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	items := make([]MailItem, 0, len(list.Value))
	for _, m := range list.Value {
		items = append(items, m.toMailItem())
	}
	return items, nil
}

// DownloadAttachment fetches the raw bytes of an attachment on a message.
func (c *Client) DownloadAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, string, error) {
	var att attachmentResource
	path := fmt.Sprintf("/me/messages/%s/attachments/%s", messageID, attachmentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &att); err != nil {
		return nil, "", err
	}
	data, err := att.decode()
	if err != nil {
		return nil, "", fmt.Errorf("graphmail: decode attachment %s: %w", attachmentID, err)
	}
	return data, att.ContentType, nil
}

// OutboundAttachment is a single file attached to an outbound mail.
type OutboundAttachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SendMail sends a plain-text mail to one recipient, re-attaching the
// original invoice PDF as the Router's composed outbound mail requires.
func (c *Client) SendMail(ctx context.Context, to, subject, body string, attachments []OutboundAttachment) error {
	req := sendMailRequest{Message: outboundMessage{
		Subject: subject,
		Body:    outboundBody{ContentType: "Text", Content: body},
	}}
	req.Message.ToRecipients = append(req.Message.ToRecipients, recipientWrapper{}.with(to))
	for _, a := range attachments {
		req.Message.Attachments = append(req.Message.Attachments, outboundAttachmentResource{
			ODataType:    "#microsoft.graph.fileAttachment",
			Name:         a.Filename,
			ContentType:  a.ContentType,
			ContentBytes: encodeAttachment(a.Data),
		})
	}
	return c.do(ctx, http.MethodPost, "/me/sendMail", req, nil)
}

// MarkAsRead sets a message's read flag once its attachment has been processed.
func (c *Client) MarkAsRead(ctx context.Context, messageID string) error {
	body := map[string]bool{"isRead": true}
	return c.do(ctx, http.MethodPatch, "/me/messages/"+messageID, body, nil)
}

// CreateSubscription requests a new push subscription.
func (c *Client) CreateSubscription(ctx context.Context, webhookURL, clientState, resource string, expiry time.Duration) (Subscription, error) {
	body := subscriptionRequest{
		ChangeType:         "created,updated",
		NotificationURL:    webhookURL,
		Resource:           resource,
		ClientState:        clientState,
		ExpirationDateTime: time.Now().Add(expiry).UTC().Format(time.RFC3339),
	}
	var sub subscriptionResource
	if err := c.do(ctx, http.MethodPost, "/subscriptions", body, &sub); err != nil {
		return Subscription{}, err
	}
	return sub.toSubscription(), nil
}

// RenewSubscription extends an existing subscription's expiry to now plus
// expiry. It renews unconditionally; deciding when a renewal is due is
// left to the caller.
func (c *Client) RenewSubscription(ctx context.Context, subscriptionID string, expiry time.Duration) (Subscription, error) {
	body := map[string]string{"expirationDateTime": time.Now().Add(expiry).UTC().Format(time.RFC3339)}
	var sub subscriptionResource
	if err := c.do(ctx, http.MethodPatch, "/subscriptions/"+subscriptionID, body, &sub); err != nil {
		return Subscription{}, err
	}
	return sub.toSubscription(), nil
}
