package domain

import "fmt"

// NotificationMessage is published onto the notify queue by the Router (and
// by the Enricher for duplicates it skips) and consumed by the Notifier, which renders it into the fixed chat envelope.
type NotificationMessage struct {
	SchemaVersion     string  `json:"schema_version"`
	ID                string  `json:"id"`
	OriginalMessageID string  `json:"original_message_id"`
	VendorName        string  `json:"vendor_name"`
	Amount            float64 `json:"amount"`
	Status            string  `json:"status"`
	RecipientEmail    string  `json:"recipient_email"`
	TransactionID     string  `json:"transaction_id"`
}

// User-visible notification statuses: chat cards surface one of these,
// distinct from the broader TransactionStatus set used internally.
const (
	NotifyProcessed        = "processed"
	NotifyUnknownVendor    = "unknown_vendor"
	NotifyDuplicateSkipped = "duplicate_skipped"
	NotifyError            = "error"
)

func (n NotificationMessage) Validate() error {
	if !AcceptsSchemaVersion(n.SchemaVersion) {
		return fmt.Errorf("notificationmessage: unsupported schema_version %q", n.SchemaVersion)
	}
	if n.OriginalMessageID == "" {
		return fmt.Errorf("notificationmessage: original_message_id is required")
	}
	if n.Status == "" {
		return fmt.Errorf("notificationmessage: status is required")
	}
	return nil
}
