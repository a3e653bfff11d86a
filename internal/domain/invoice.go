package domain

import (
	"fmt"
	"time"
)

// InvoiceStatus enumerates the outcome an EnrichedInvoice carries out of the
// Enricher.
type InvoiceStatus string

const (
	InvoiceEnriched InvoiceStatus = "enriched"
	InvoiceUnknown  InvoiceStatus = "unknown"
	InvoiceReseller InvoiceStatus = "reseller"
)

// MatchMethod enumerates how a vendor was resolved, in matching-precedence
// order. Stored verbatim on both EnrichedInvoice and InvoiceTransaction.
type MatchMethod string

const (
	MatchExact  MatchMethod = "exact"
	MatchFuzzy  MatchMethod = "fuzzy"
	MatchAI     MatchMethod = "ai"
	MatchDomain MatchMethod = "domain"
	MatchNone   MatchMethod = "none"
)

// EnrichedInvoice is published onto the to-post queue by the Enricher. It
// carries every RawMail field plus the vendor-master attributes resolved by
// the C1 matching algorithm.
type EnrichedInvoice struct {
	SchemaVersion     string        `json:"schema_version"`
	ID                string        `json:"id"`
	OriginalMessageID string        `json:"original_message_id"`
	Sender            string        `json:"sender"`
	Subject           string        `json:"subject"`
	BlobURL           string        `json:"blob_url"`
	ReceivedAt        time.Time     `json:"received_at"`
	InvoiceAmount     float64       `json:"invoice_amount,omitempty"`
	Currency          string        `json:"currency,omitempty"`
	DueDate           string        `json:"due_date,omitempty"`
	PaymentTerms      string        `json:"payment_terms,omitempty"`

	VendorName         string        `json:"vendor_name"`
	ExpenseDept         string        `json:"expense_dept"`
	GLCode              string        `json:"gl_code"`
	AllocationSchedule  string        `json:"allocation_schedule"`
	BillingParty        string        `json:"billing_party"`
	Status               InvoiceStatus `json:"status"`
	RecipientEmail       string        `json:"recipient_email"`
	MatchConfidence      int           `json:"match_confidence"`
	MatchMethod          MatchMethod   `json:"match_method"`

	// DuplicateOfTransactionID names an earlier transaction this invoice
	// duplicates. No stage sets it at present: on a find_candidate_duplicate
	// hit the Enricher records the earlier id on the InvoiceTransaction row
	// and publishes no EnrichedInvoice, so the field stays empty.
	DuplicateOfTransactionID string `json:"duplicate_of_transaction_id,omitempty"`
}

// FromRawMail seeds an EnrichedInvoice with the fields carried over
// unchanged from the originating RawMail.
func FromRawMail(m RawMail) EnrichedInvoice {
	return EnrichedInvoice{
		SchemaVersion:     CurrentSchemaVersion,
		ID:                m.ID,
		OriginalMessageID: m.OriginalMessageID,
		Sender:            m.Sender,
		Subject:           m.Subject,
		BlobURL:           m.BlobURL,
		ReceivedAt:        m.ReceivedAt,
		InvoiceAmount:     m.InvoiceAmount,
		Currency:          m.Currency,
		DueDate:           m.DueDate,
		PaymentTerms:      m.PaymentTerms,
	}
}

// Validate enforces the fields the Router depends on for loop prevention
// and deduplication; it is intentionally looser than RawMail.Validate since
// by this stage vendor resolution may have legitimately produced a
// zero-confidence "unknown" record.
func (e EnrichedInvoice) Validate() error {
	if !AcceptsSchemaVersion(e.SchemaVersion) {
		return fmt.Errorf("enrichedinvoice: unsupported schema_version %q", e.SchemaVersion)
	}
	if e.OriginalMessageID == "" {
		return fmt.Errorf("enrichedinvoice: original_message_id is required")
	}
	if e.RecipientEmail == "" {
		return fmt.Errorf("enrichedinvoice: recipient_email is required")
	}
	return nil
}
