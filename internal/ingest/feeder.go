// Package ingest implements the C5 Ingestion Front: the Webhook Receiver,
// Notification Worker, and Timer Poller, the two feeders that both place
// RawMail onto the raw-mail queue without ever double-processing the same
// upstream message. Shaped like an internal/tracking consumer loop (a
// Start/Stop struct polling a queue in a goroutine), using a narrow
// provider-client interface the way internal/agent does.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/afoxnyc3/invoice-agent/internal/breaker"
	"github.com/afoxnyc3/invoice-agent/internal/config"
	"github.com/afoxnyc3/invoice-agent/internal/domain"
	"github.com/afoxnyc3/invoice-agent/internal/graphmail"
	"github.com/afoxnyc3/invoice-agent/internal/pdfextract"
	"github.com/afoxnyc3/invoice-agent/internal/pkg/logger"
	"github.com/afoxnyc3/invoice-agent/internal/queue"
	"github.com/afoxnyc3/invoice-agent/internal/storage"
)

// mailProvider is the narrow surface both feeders need from graphmail.Client,
// matching the narrow-interface convention used throughout internal/storage
// and internal/queue so tests can supply a fake instead of an HTTP client.
type mailProvider interface {
	GetMessage(ctx context.Context, messageID string) (graphmail.MailItem, error)
	ListUnreadMessages(ctx context.Context, pageSize int) ([]graphmail.MailItem, error)
	DownloadAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, string, error)
	MarkAsRead(ctx context.Context, messageID string) error
}

// ids mints sortable event ids; narrowed to let tests supply a deterministic
// stub instead of idgen's crypto/rand-seeded default.
type ids interface {
	NewID() string
}

// feeder holds the dependencies and the single mail-ingestion routine
// (fetch once unread+attached, dedup-check, download, persist blob, emit
// RawMail, mark read) shared verbatim by the Notification Worker and the
// Timer Poller so the two paths can never drift apart and produce
// different downstream shapes.
type feeder struct {
	graph    mailProvider
	rawMail  *queue.Queue
	blobs    storage.BlobStore
	txlog    storage.TransactionLog
	breakers *breaker.Registry
	ids      ids
	mailbox  config.MailboxConfig
	extract  bool
}

func newFeeder(graph mailProvider, rawMail *queue.Queue, blobs storage.BlobStore, txlog storage.TransactionLog, breakers *breaker.Registry, idGen ids, mailbox config.MailboxConfig, extractOnIngest bool) *feeder {
	return &feeder{
		graph:    graph,
		rawMail:  rawMail,
		blobs:    blobs,
		txlog:    txlog,
		breakers: breakers,
		ids:      idGen,
		mailbox:  mailbox,
		extract:  extractOnIngest,
	}
}

// ingestItem applies the shared sender-validation, duplicate-check,
// attachment-download, blob-persist, and RawMail-emit logic common to the
// Notification Worker and the Timer Poller, applied to a single mail item.
// It returns (skipped, error); skipped is true for a clean no-op (looped
// sender, already processed, or no attachment), in which case the item is
// not marked read. The current callers discard skipped.
func (f *feeder) ingestItem(ctx context.Context, item graphmail.MailItem) (skipped bool, err error) {
	if f.mailbox.IsIngestMailbox(item.Sender) {
		logger.Warn("ingest: looped sender", "sender", logger.RedactEmail(item.Sender), "message_id", item.ID)
		return true, nil
	}

	processed, err := f.txlog.WasProcessed(ctx, item.ID)
	if err != nil {
		return false, fmt.Errorf("ingest: was_processed check for %s: %w", item.ID, err)
	}
	if processed {
		logger.Info("ingest: duplicate skipped", "message_id", item.ID)
		return true, nil
	}

	if !item.HasAttachment {
		return true, nil
	}

	var attachment []byte
	var contentType string
	err = f.breakers.Call(ctx, "graph", func(ctx context.Context) error {
		var callErr error
		attachment, contentType, callErr = f.graph.DownloadAttachment(ctx, item.ID, item.AttachmentID)
		return callErr
	})
	if err != nil {
		return false, fmt.Errorf("ingest: download attachment for %s: %w", item.ID, err)
	}

	eventID := f.ids.NewID()
	key := storage.AttachmentKey(item.ReceivedAt, eventID, item.AttachmentName)

	var blobURL string
	err = f.breakers.Call(ctx, "blob", func(ctx context.Context) error {
		var callErr error
		blobURL, callErr = f.blobs.Put(ctx, key, contentType, attachment)
		return callErr
	})
	if err != nil {
		return false, fmt.Errorf("ingest: persist blob for %s: %w", item.ID, err)
	}

	raw := domain.RawMail{
		SchemaVersion:     domain.CurrentSchemaVersion,
		ID:                eventID,
		OriginalMessageID: item.ID,
		Sender:            item.Sender,
		Subject:           item.Subject,
		BlobURL:           blobURL,
		ReceivedAt:        item.ReceivedAt,
	}

	if f.extract {
		if fields, ok := extractFields(attachment); ok {
			raw.VendorName = fields.VendorNameCandidate
			raw.InvoiceAmount = fields.Amount
			raw.Currency = fields.Currency
			raw.PaymentTerms = fields.PaymentTerms
			if !fields.DueDate.IsZero() {
				raw.DueDate = fields.DueDate.Format(time.RFC3339)
			}
		}
	}

	// The blob must exist before RawMail is visible to downstream
	// consumers — Put above already happened, so publishing here
	// preserves that ordering.
	if err := f.rawMail.Publish(ctx, raw); err != nil {
		return false, fmt.Errorf("ingest: publish raw mail for %s: %w", item.ID, err)
	}

	if err := f.breakers.Call(ctx, "graph", func(ctx context.Context) error {
		return f.graph.MarkAsRead(ctx, item.ID)
	}); err != nil {
		logger.Warn("ingest: mark-as-read failed", "message_id", item.ID, "error", err.Error())
	}

	return false, nil
}

// extractFields runs the PDF/LLM vendor extractor's regex heuristics
// eagerly at ingestion time, when pre-extraction is enabled. The
// LLM-assisted step is deliberately not invoked here — it runs later, once
// per message, inside the Enricher's C1 matching call, rather than once
// per feeder invocation.
func extractFields(attachment []byte) (pdfextract.Fields, bool) {
	text, err := pdfextract.ExtractText(attachment)
	if err != nil || text == "" {
		return pdfextract.Fields{}, false
	}
	return pdfextract.ExtractFields(text), true
}

// lastPathSegment extracts the trailing id segment of a provider resource
// path, e.g. "me/messages/AAMk...==" -> "AAMk...==".
func lastPathSegment(resource string) string {
	resource = strings.TrimRight(resource, "/")
	idx := strings.LastIndexByte(resource, '/')
	if idx < 0 || idx == len(resource)-1 {
		return ""
	}
	return resource[idx+1:]
}
