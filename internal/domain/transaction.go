package domain

import "time"

// TransactionStatus enumerates the Status values an InvoiceTransaction row
// may carry. Only StatusProcessed counts as a completed, exactly-once send;
// every other value records a logical, non-failure outcome.
type TransactionStatus string

const (
	StatusProcessed       TransactionStatus = "processed"
	StatusUnknown         TransactionStatus = "unknown"
	StatusDuplicateSkipped TransactionStatus = "duplicate_skipped"
	StatusError           TransactionStatus = "error"
	StatusLooped          TransactionStatus = "looped"
)

// InvoiceTransaction (C2) is an append-only audit row. PartitionKey is the
// YYYYMM of ProcessedAt; RowKey is the sortable event id minted for this
// sighting. Rows are never mutated once written — a status transition
// appends a new row rather than updating an existing one.
type InvoiceTransaction struct {
	PartitionKey             string            `dynamodbav:"pk"`
	RowKey                   string            `dynamodbav:"sk"`
	OriginalMessageID        string            `dynamodbav:"original_message_id"`
	VendorKey                string            `dynamodbav:"vendor_key,omitempty"`
	VendorName               string            `dynamodbav:"vendor_name"`
	Sender                   string            `dynamodbav:"sender"`
	Subject                  string            `dynamodbav:"subject"`
	Status                   TransactionStatus `dynamodbav:"status"`
	ProcessedAt              time.Time         `dynamodbav:"processed_at"`
	RecipientEmail           string            `dynamodbav:"recipient_email"`
	Amount                   float64           `dynamodbav:"amount"`
	Currency                 string            `dynamodbav:"currency"`
	MatchMethod              MatchMethod       `dynamodbav:"match_method"`
	DuplicateHash            string            `dynamodbav:"duplicate_hash,omitempty"`
	DuplicateOfTransactionID string            `dynamodbav:"duplicate_of_transaction_id,omitempty"`
}

// MonthPartition formats t as the YYYYMM partition key used by C2.
func MonthPartition(t time.Time) string {
	return t.UTC().Format("200601")
}
