package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/afoxnyc3/invoice-agent/internal/breaker"
	"github.com/afoxnyc3/invoice-agent/internal/config"
	"github.com/afoxnyc3/invoice-agent/internal/domain"
	"github.com/afoxnyc3/invoice-agent/internal/pdfextract"
	"github.com/afoxnyc3/invoice-agent/internal/pkg/logger"
	"github.com/afoxnyc3/invoice-agent/internal/queue"
	"github.com/afoxnyc3/invoice-agent/internal/storage"
	"github.com/afoxnyc3/invoice-agent/internal/vendormatch"
)

// ids mints the sortable event ids stamped onto every record this worker
// produces, matching internal/ingest's narrow local interface over
// internal/idgen.Generator.
type ids interface {
	NewID() string
}

// matcher is the narrow vendormatch surface the Enricher needs, letting
// tests supply a fake instead of a real VendorStore/LLM pair.
type matcher interface {
	Match(ctx context.Context, c vendormatch.Candidate) (domain.VendorMatch, error)
}

// Enricher resolves a vendor for each RawMail and decides where it is
// headed: the configured AP inbox, the reseller mailbox, or the
// vendor-registration mailbox for an unmatched sender.
type Enricher struct {
	rawMail  *queue.Queue
	toPost   *queue.Queue
	notify   *queue.Queue
	blobs    storage.BlobStore
	txlog    storage.TransactionLog
	match    matcher
	breakers *breaker.Registry
	ids      ids
	mailbox  config.MailboxConfig
}

func NewEnricher(
	rawMail, toPost, notify *queue.Queue,
	blobs storage.BlobStore,
	txlog storage.TransactionLog,
	match matcher,
	breakers *breaker.Registry,
	idGen ids,
	mailbox config.MailboxConfig,
) *Enricher {
	return &Enricher{
		rawMail:  rawMail,
		toPost:   toPost,
		notify:   notify,
		blobs:    blobs,
		txlog:    txlog,
		match:    match,
		breakers: breakers,
		ids:      idGen,
		mailbox:  mailbox,
	}
}

// Run drains the raw-mail queue until ctx is cancelled.
func (e *Enricher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		messages, err := e.rawMail.Poll(ctx, 10)
		if err != nil {
			logger.Error("enricher: poll raw-mail", "error", err.Error())
			continue
		}
		for _, msg := range messages {
			e.process(ctx, msg)
		}
	}
}

func (e *Enricher) process(ctx context.Context, msg queue.Message) {
	if e.rawMail.ExceedsDeadLetterThreshold(msg) {
		if err := e.rawMail.Escalate(ctx, msg); err != nil {
			logger.Error("enricher: escalate", "message_id", msg.MessageID, "error", err.Error())
		}
		return
	}

	var raw domain.RawMail
	if err := msg.Decode(&raw); err != nil || raw.Validate() != nil {
		logger.Error("enricher: invalid raw mail, leaving for retry", "message_id", msg.MessageID)
		return
	}

	if err := e.enrich(ctx, raw); err != nil {
		logger.Error("enricher: enrich", "original_message_id", raw.OriginalMessageID, "error", err.Error())
		return
	}

	if err := e.rawMail.Ack(ctx, msg); err != nil {
		logger.Error("enricher: ack", "message_id", msg.MessageID, "error", err.Error())
	}
}

func (e *Enricher) enrich(ctx context.Context, raw domain.RawMail) error {
	processed, err := e.txlog.WasProcessed(ctx, raw.OriginalMessageID)
	if err != nil {
		return fmt.Errorf("enricher: was_processed: %w", err)
	}
	if processed {
		return e.emitNotify(ctx, raw, "", domain.NotifyDuplicateSkipped, "")
	}

	pdfText, fields := e.extract(ctx, raw)
	if fields.VendorNameCandidate != "" && raw.VendorName == "" {
		raw.VendorName = fields.VendorNameCandidate
	}
	if fields.Amount != 0 && raw.InvoiceAmount == 0 {
		raw.InvoiceAmount = fields.Amount
		raw.Currency = fields.Currency
	}

	result, err := e.match.Match(ctx, vendormatch.Candidate{
		VendorNameGuess: raw.VendorName,
		Sender:          raw.Sender,
		PDFText:         pdfText,
	})
	if err != nil {
		return fmt.Errorf("enricher: match: %w", err)
	}

	invoice := domain.FromRawMail(raw)
	invoice.MatchConfidence = result.Confidence
	invoice.MatchMethod = result.Method

	switch {
	case result.Found && strings.EqualFold(result.Vendor.BillingParty, "reseller"):
		applyVendor(&invoice, result.Vendor)
		invoice.Status = domain.InvoiceReseller
		invoice.RecipientEmail = e.mailbox.ResellerMailbox
	case result.Found:
		applyVendor(&invoice, result.Vendor)
		invoice.Status = domain.InvoiceEnriched
		invoice.RecipientEmail = e.mailbox.APEmailAddress
	default:
		invoice.Status = domain.InvoiceUnknown
		invoice.RecipientEmail = e.mailbox.UnknownVendorBox
		invoice.Subject = "[Unknown Vendor] " + invoice.Subject
	}

	if dupID, hit, err := e.txlog.FindCandidateDuplicate(ctx, result.Vendor.VendorKey, raw.Sender, raw.ReceivedAt); err != nil {
		return fmt.Errorf("enricher: find_candidate_duplicate: %w", err)
	} else if hit {
		// Never published to to-post — the queue message is simply acked
		// once the audit row and notify side-effects below succeed.
		if err := e.appendDuplicateRow(ctx, raw, invoice, result.Vendor.VendorKey, dupID); err != nil {
			return fmt.Errorf("enricher: append duplicate row: %w", err)
		}
		return e.emitNotify(ctx, raw, invoice.VendorName, domain.NotifyDuplicateSkipped, dupID)
	}

	if err := invoice.Validate(); err != nil {
		return fmt.Errorf("enricher: built invalid enriched invoice: %w", err)
	}
	if err := e.toPost.Publish(ctx, invoice); err != nil {
		return fmt.Errorf("enricher: publish to-post: %w", err)
	}
	return nil
}

// appendDuplicateRow records the candidate-duplicate outcome in the audit
// log: the invoice never reaches to-post, so this is the only row this
// sighting will ever produce, and it must carry dupID so the original
// transaction it matches stays discoverable.
func (e *Enricher) appendDuplicateRow(ctx context.Context, raw domain.RawMail, invoice domain.EnrichedInvoice, vendorKey, dupID string) error {
	row := domain.InvoiceTransaction{
		RowKey:                   e.ids.NewID(),
		OriginalMessageID:        raw.OriginalMessageID,
		VendorKey:                vendorKey,
		VendorName:               invoice.VendorName,
		Sender:                   raw.Sender,
		Subject:                  raw.Subject,
		Status:                   domain.StatusDuplicateSkipped,
		ProcessedAt:              time.Now().UTC(),
		Amount:                   raw.InvoiceAmount,
		Currency:                 raw.Currency,
		MatchMethod:              invoice.MatchMethod,
		DuplicateHash:            storage.DuplicateHash(vendorKey, raw.Sender, raw.ReceivedAt),
		DuplicateOfTransactionID: dupID,
	}
	return e.txlog.Append(ctx, row)
}

func applyVendor(invoice *domain.EnrichedInvoice, v domain.VendorMaster) {
	invoice.VendorName = v.VendorName
	invoice.ExpenseDept = v.ExpenseDept
	invoice.GLCode = v.GLCode
	invoice.AllocationSchedule = v.AllocationSchedule
	invoice.BillingParty = v.BillingParty
}

// extract fetches the attachment bytes and runs the text/field heuristics.
// RawMail may already carry pre-extracted fields from an ingestion feeder
// that had extraction enabled; this still needs the raw text for the LLM
// step regardless, so it always re-fetches and re-extracts text, only
// filling fields the caller finds still empty.
func (e *Enricher) extract(ctx context.Context, raw domain.RawMail) (string, pdfextract.Fields) {
	if !raw.HasAttachment() {
		return "", pdfextract.Fields{}
	}
	key, ok := blobKeyFromURL(raw.BlobURL)
	if !ok {
		return "", pdfextract.Fields{}
	}

	var data []byte
	err := e.breakers.Call(ctx, "blob", func(ctx context.Context) error {
		var getErr error
		data, getErr = e.blobs.Get(ctx, key)
		return getErr
	})
	if err != nil {
		logger.Warn("enricher: fetch attachment failed", "error", err.Error())
		return "", pdfextract.Fields{}
	}

	text, err := pdfextract.ExtractText(data)
	if err != nil {
		logger.Warn("enricher: pdf text extraction failed", "error", err.Error())
		return "", pdfextract.Fields{}
	}
	return text, pdfextract.ExtractFields(text)
}

func (e *Enricher) emitNotify(ctx context.Context, raw domain.RawMail, vendorName, status, transactionID string) error {
	msg := domain.NotificationMessage{
		SchemaVersion:     domain.CurrentSchemaVersion,
		ID:                e.ids.NewID(),
		OriginalMessageID: raw.OriginalMessageID,
		VendorName:        vendorName,
		Amount:            raw.InvoiceAmount,
		Status:            status,
		TransactionID:     transactionID,
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("enricher: built invalid notification: %w", err)
	}
	if err := e.notify.Publish(ctx, msg); err != nil {
		return fmt.Errorf("enricher: publish notify: %w", err)
	}
	return nil
}
