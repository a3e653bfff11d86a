package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/afoxnyc3/invoice-agent/internal/breaker"
	"github.com/afoxnyc3/invoice-agent/internal/config"
	"github.com/afoxnyc3/invoice-agent/internal/domain"
	"github.com/afoxnyc3/invoice-agent/internal/graphmail"
	"github.com/afoxnyc3/invoice-agent/internal/pkg/logger"
	"github.com/afoxnyc3/invoice-agent/internal/queue"
	"github.com/afoxnyc3/invoice-agent/internal/storage"
	"github.com/afoxnyc3/invoice-agent/internal/vendormatch"
)

// mailSender is the narrow graphmail surface the Router needs to send the
// composed outbound mail.
type mailSender interface {
	SendMail(ctx context.Context, to, subject, body string, attachments []graphmail.OutboundAttachment) error
}

// Router enforces the recipient-validation and deduplication layers, sends
// the outbound mail to AP, and appends the audit row.
type Router struct {
	toPost   *queue.Queue
	notify   *queue.Queue
	blobs    storage.BlobStore
	txlog    storage.TransactionLog
	mail     mailSender
	breakers *breaker.Registry
	ids      ids
	mailbox  config.MailboxConfig
}

func NewRouter(
	toPost, notify *queue.Queue,
	blobs storage.BlobStore,
	txlog storage.TransactionLog,
	mail mailSender,
	breakers *breaker.Registry,
	idGen ids,
	mailbox config.MailboxConfig,
) *Router {
	return &Router{
		toPost:   toPost,
		notify:   notify,
		blobs:    blobs,
		txlog:    txlog,
		mail:     mail,
		breakers: breakers,
		ids:      idGen,
		mailbox:  mailbox,
	}
}

func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		messages, err := r.toPost.Poll(ctx, 10)
		if err != nil {
			logger.Error("router: poll to-post", "error", err.Error())
			continue
		}
		for _, msg := range messages {
			r.process(ctx, msg)
		}
	}
}

func (r *Router) process(ctx context.Context, msg queue.Message) {
	if r.toPost.ExceedsDeadLetterThreshold(msg) {
		if err := r.toPost.Escalate(ctx, msg); err != nil {
			logger.Error("router: escalate", "message_id", msg.MessageID, "error", err.Error())
		}
		return
	}

	var invoice domain.EnrichedInvoice
	if err := msg.Decode(&invoice); err != nil || invoice.Validate() != nil {
		logger.Error("router: invalid enriched invoice, leaving for retry", "message_id", msg.MessageID)
		return
	}

	if err := r.route(ctx, msg, invoice); err != nil {
		logger.Error("router: route", "original_message_id", invoice.OriginalMessageID, "error", err.Error())
		return
	}

	if err := r.toPost.Ack(ctx, msg); err != nil {
		logger.Error("router: ack", "message_id", msg.MessageID, "error", err.Error())
	}
}

func (r *Router) route(ctx context.Context, msg queue.Message, invoice domain.EnrichedInvoice) error {
	// Recipient validation (loop-prevention layer 3): an invoice can never
	// be routed back into the ingest mailbox.
	if r.mailbox.IsIngestMailbox(invoice.RecipientEmail) {
		logger.Warn("router: looped recipient", "recipient_email", logger.RedactEmail(invoice.RecipientEmail))
		if err := r.appendRow(ctx, invoice, "", domain.StatusLooped); err != nil {
			return err
		}
		return r.emitNotify(ctx, invoice, domain.NotifyError, "")
	}

	// Deduplication (layer 2): a second was_processed check, now keyed on
	// the same original_message_id the Enricher already checked once.
	processed, err := r.txlog.WasProcessed(ctx, invoice.OriginalMessageID)
	if err != nil {
		return fmt.Errorf("router: was_processed: %w", err)
	}
	if processed {
		return r.emitNotify(ctx, invoice, domain.NotifyDuplicateSkipped, "")
	}

	subject := fmt.Sprintf("Invoice — %s — %s", invoice.VendorName, formatAmount(invoice.InvoiceAmount, invoice.Currency))
	body := composeBody(invoice)

	var attachments []graphmail.OutboundAttachment
	if key, ok := blobKeyFromURL(invoice.BlobURL); ok {
		var data []byte
		err := r.breakers.Call(ctx, "blob", func(ctx context.Context) error {
			var getErr error
			data, getErr = r.blobs.Get(ctx, key)
			return getErr
		})
		if err != nil {
			return fmt.Errorf("router: fetch attachment for reattach: %w", err)
		}
		attachments = append(attachments, graphmail.OutboundAttachment{
			Filename:    "invoice.pdf",
			ContentType: "application/pdf",
			Data:        data,
		})
	}

	if err := r.breakers.Call(ctx, "graph", func(ctx context.Context) error {
		return r.mail.SendMail(ctx, invoice.RecipientEmail, subject, body, attachments)
	}); err != nil {
		return fmt.Errorf("router: send mail: %w", err)
	}

	// Transaction append (layer 4). A failure here must not trigger a
	// retried send, so this stage propagates the error straight to
	// dead-letter instead of re-attempting SendMail.
	txStatus := domain.StatusProcessed
	if invoice.Status == domain.InvoiceUnknown {
		txStatus = domain.StatusUnknown
	}
	if err := r.appendRow(ctx, invoice, invoice.RecipientEmail, txStatus); err != nil {
		if escErr := r.toPost.Escalate(ctx, msg); escErr != nil {
			logger.Error("router: escalate after failed append", "message_id", msg.MessageID, "error", escErr.Error())
		}
		return fmt.Errorf("router: append transaction: %w", err)
	}

	return r.emitNotify(ctx, invoice, notifyStatusFor(invoice.Status), "")
}

func notifyStatusFor(status domain.InvoiceStatus) string {
	if status == domain.InvoiceUnknown {
		return domain.NotifyUnknownVendor
	}
	return domain.NotifyProcessed
}

func composeBody(invoice domain.EnrichedInvoice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Vendor: %s\n", invoice.VendorName)
	fmt.Fprintf(&b, "Amount: %s\n", formatAmount(invoice.InvoiceAmount, invoice.Currency))
	fmt.Fprintf(&b, "GL Code: %s\n", invoice.GLCode)
	fmt.Fprintf(&b, "Department: %s\n", invoice.ExpenseDept)
	fmt.Fprintf(&b, "Allocation Schedule: %s\n", invoice.AllocationSchedule)
	fmt.Fprintf(&b, "Billing Party: %s\n", invoice.BillingParty)
	fmt.Fprintf(&b, "Attachment: %s\n", invoice.BlobURL)
	return b.String()
}

func (r *Router) appendRow(ctx context.Context, invoice domain.EnrichedInvoice, recipient string, status domain.TransactionStatus) error {
	vendorKey := vendormatch.Normalize(invoice.VendorName)
	now := time.Now().UTC()
	row := domain.InvoiceTransaction{
		RowKey:                   r.ids.NewID(),
		OriginalMessageID:        invoice.OriginalMessageID,
		VendorKey:                vendorKey,
		VendorName:               invoice.VendorName,
		Sender:                   invoice.Sender,
		Subject:                  invoice.Subject,
		Status:                   status,
		ProcessedAt:              now,
		RecipientEmail:           recipient,
		Amount:                   invoice.InvoiceAmount,
		Currency:                 invoice.Currency,
		MatchMethod:              invoice.MatchMethod,
		DuplicateHash:            storage.DuplicateHash(vendorKey, invoice.Sender, invoice.ReceivedAt),
		DuplicateOfTransactionID: invoice.DuplicateOfTransactionID,
	}
	return r.txlog.Append(ctx, row)
}

func (r *Router) emitNotify(ctx context.Context, invoice domain.EnrichedInvoice, status, transactionID string) error {
	msg := domain.NotificationMessage{
		SchemaVersion:     domain.CurrentSchemaVersion,
		ID:                r.ids.NewID(),
		OriginalMessageID: invoice.OriginalMessageID,
		VendorName:        invoice.VendorName,
		Amount:            invoice.InvoiceAmount,
		Status:            status,
		RecipientEmail:    invoice.RecipientEmail,
		TransactionID:     transactionID,
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("router: built invalid notification: %w", err)
	}
	return r.notify.Publish(ctx, msg)
}
