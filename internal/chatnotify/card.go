// Package chatnotify renders a domain.NotificationMessage into the fixed
// chat-webhook envelope and posts it to the configured incoming webhook
// URL. Built over plain net/http + httpretry, mirroring internal/graphmail's
// client shape, since the chat provider here is a webhook POST endpoint
// rather than an AWS service client.
package chatnotify

import (
	"fmt"

	"github.com/afoxnyc3/invoice-agent/internal/domain"
)

const (
	cardVersion     = "1.4"
	cardContentType = "application/vnd.microsoft.card.adaptive"
	maxPayloadBytes = 28 * 1024
)

// Envelope is the outer chat-message wrapper. Field order and tags mirror
// the wire format verbatim: attachments is always a single-element slice,
// contentUrl is always explicitly null rather than omitted.
type Envelope struct {
	Type        string       `json:"type"`
	Attachments []Attachment `json:"attachments"`
}

type Attachment struct {
	ContentType string       `json:"contentType"`
	ContentURL  *string      `json:"contentUrl"`
	Content     AdaptiveCard `json:"content"`
}

type AdaptiveCard struct {
	Type    string    `json:"type"`
	Version string    `json:"version"`
	Body    []Element `json:"body"`
	Actions []Action  `json:"actions,omitempty"`
}

// Element is a single Adaptive Card body block. Only the TextBlock shape is
// populated by this package; the rest of the schema stays unused but the
// type keeps every field addressable if a caller outside this package wants
// to hand-build a card.
type Element struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Weight string `json:"weight,omitempty"`
	Size   string `json:"size,omitempty"`
	Wrap   bool   `json:"wrap,omitempty"`
	Color  string `json:"color,omitempty"`
}

type Action struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

func textBlock(text, weight, size, color string) Element {
	return Element{Type: "TextBlock", Text: text, Weight: weight, Size: size, Color: color, Wrap: true}
}

// statusColor maps a NotificationMessage status to the Adaptive Card color
// token used for its headline block.
func statusColor(status string) string {
	switch status {
	case domain.NotifyProcessed:
		return "good"
	case domain.NotifyUnknownVendor, domain.NotifyDuplicateSkipped:
		return "warning"
	case domain.NotifyError:
		return "attention"
	default:
		return "default"
	}
}

func statusHeadline(status string) string {
	switch status {
	case domain.NotifyProcessed:
		return "Invoice processed"
	case domain.NotifyUnknownVendor:
		return "Vendor not recognized"
	case domain.NotifyDuplicateSkipped:
		return "Duplicate invoice skipped"
	case domain.NotifyError:
		return "Invoice processing failed"
	default:
		return "Invoice notification"
	}
}

// BuildEnvelope renders a NotificationMessage into the chat webhook
// envelope. All three of contentType, contentUrl (explicitly null), and
// content are always present; the card version is always "1.4"; every text
// block sets wrap:true.
func BuildEnvelope(msg domain.NotificationMessage) Envelope {
	body := []Element{
		textBlock(statusHeadline(msg.Status), "bolder", "medium", statusColor(msg.Status)),
		textBlock(fmt.Sprintf("Vendor: %s", nonEmpty(msg.VendorName, "Unknown")), "default", "default", "default"),
		textBlock(fmt.Sprintf("Amount: $%.2f", msg.Amount), "default", "default", "default"),
		textBlock(fmt.Sprintf("Transaction: %s", nonEmpty(msg.TransactionID, "-")), "default", "default", "default"),
	}
	if msg.RecipientEmail != "" {
		body = append(body, textBlock(fmt.Sprintf("Recipient: %s", msg.RecipientEmail), "default", "default", "default"))
	}

	return Envelope{
		Type: "message",
		Attachments: []Attachment{
			{
				ContentType: cardContentType,
				ContentURL:  nil,
				Content: AdaptiveCard{
					Type:    "AdaptiveCard",
					Version: cardVersion,
					Body:    body,
				},
			},
		},
	}
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
