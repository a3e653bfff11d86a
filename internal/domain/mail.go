package domain

import (
	"fmt"
	"time"
)

// NoAttachmentBlob is the sentinel BlobURL for a RawMail whose source item
// carried no invoice-candidate attachment.
const NoAttachmentBlob = "none"

// RawMail is published onto the raw-mail queue by both ingestion feeders
// (Webhook Receiver + Notification Worker, and the Timer Poller). Both
// feeders emit this exact shape so the Enricher never needs to know which
// path produced a given message.
type RawMail struct {
	SchemaVersion      string    `json:"schema_version"`
	ID                 string    `json:"id"`
	OriginalMessageID  string    `json:"original_message_id"`
	Sender             string    `json:"sender"`
	Subject            string    `json:"subject"`
	BlobURL            string    `json:"blob_url"`
	ReceivedAt         time.Time `json:"received_at"`
	VendorName         string    `json:"vendor_name,omitempty"`
	InvoiceAmount      float64   `json:"invoice_amount,omitempty"`
	Currency           string    `json:"currency,omitempty"`
	DueDate            string    `json:"due_date,omitempty"`
	PaymentTerms       string    `json:"payment_terms,omitempty"`
}

// Validate checks the fields the Enricher treats as a contract, not a
// convenience: a missing OriginalMessageID can never be deduplicated.
func (m RawMail) Validate() error {
	if !AcceptsSchemaVersion(m.SchemaVersion) {
		return fmt.Errorf("rawmail: unsupported schema_version %q", m.SchemaVersion)
	}
	if m.OriginalMessageID == "" {
		return fmt.Errorf("rawmail: original_message_id is required")
	}
	if m.ID == "" {
		return fmt.Errorf("rawmail: id is required")
	}
	if m.Sender == "" {
		return fmt.Errorf("rawmail: sender is required")
	}
	return nil
}

// HasAttachment reports whether this RawMail carries a real blob reference.
func (m RawMail) HasAttachment() bool {
	return m.BlobURL != "" && m.BlobURL != NoAttachmentBlob
}
