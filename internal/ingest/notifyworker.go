package ingest

import (
	"context"

	"github.com/afoxnyc3/invoice-agent/internal/breaker"
	"github.com/afoxnyc3/invoice-agent/internal/config"
	"github.com/afoxnyc3/invoice-agent/internal/domain"
	"github.com/afoxnyc3/invoice-agent/internal/graphmail"
	"github.com/afoxnyc3/invoice-agent/internal/idgen"
	"github.com/afoxnyc3/invoice-agent/internal/pkg/logger"
	"github.com/afoxnyc3/invoice-agent/internal/queue"
	"github.com/afoxnyc3/invoice-agent/internal/storage"
)

// NotificationWorker is the push-driven Notification Worker: it consumes the
// notifications queue the Receiver fills and, for each entry, fetches the
// referenced mail item and runs it through the shared feeder logic.
// Shaped like an internal/tracking.Consumer's Start/Stop/poll loop,
// generalized to this package's queue.Queue abstraction.
type NotificationWorker struct {
	notifications *queue.Queue
	feeder        *feeder
}

func NewNotificationWorker(
	notifications *queue.Queue,
	rawMail *queue.Queue,
	graph mailProvider,
	blobs storage.BlobStore,
	txlog storage.TransactionLog,
	breakers *breaker.Registry,
	idGen ids,
	mailbox config.MailboxConfig,
	extractOnIngest bool,
) *NotificationWorker {
	return &NotificationWorker{
		notifications: notifications,
		feeder:        newFeeder(graph, rawMail, blobs, txlog, breakers, idGen, mailbox, extractOnIngest),
	}
}

var _ ids = (*idgen.Generator)(nil)

// Run polls the notifications queue until ctx is cancelled. Each batch is
// processed sequentially; a single message's failure only affects that
// message's own redelivery/dead-letter accounting.
func (w *NotificationWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		messages, err := w.notifications.Poll(ctx, 10)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("notification worker: poll failed", "error", err.Error())
			continue
		}

		for _, msg := range messages {
			w.process(ctx, msg)
		}
	}
}

func (w *NotificationWorker) process(ctx context.Context, msg queue.Message) {
	if w.notifications.ExceedsDeadLetterThreshold(msg) {
		if err := w.notifications.Escalate(ctx, msg); err != nil {
			logger.Error("notification worker: escalate failed", "message_id", msg.MessageID, "error", err.Error())
		}
		return
	}

	var notice domain.ChangeNotification
	if err := msg.Decode(&notice); err != nil {
		logger.Error("notification worker: bad payload", "message_id", msg.MessageID, "error", err.Error())
		w.ackOrLog(ctx, msg)
		return
	}
	if err := notice.Validate(); err != nil {
		logger.Error("notification worker: invalid notification", "message_id", msg.MessageID, "error", err.Error())
		w.ackOrLog(ctx, msg)
		return
	}

	if err := w.fetchAndIngest(ctx, notice); err != nil {
		logger.Error("notification worker: ingest failed", "subscription_id", notice.SubscriptionID, "error", err.Error())
		return // leave unacked — redelivered, dequeue count advances toward dead-letter
	}

	w.ackOrLog(ctx, msg)
}

func (w *NotificationWorker) fetchAndIngest(ctx context.Context, notice domain.ChangeNotification) error {
	// The notification envelope carries only subscriptionId/resource;
	// the referenced message id is embedded in resource's trailing segment
	// for this provider's wire shape (".../messages/{id}").
	messageID := lastPathSegment(notice.Resource)
	if messageID == "" {
		logger.Warn("notification worker: no message id in resource", "resource", notice.Resource)
		return nil
	}

	var item graphmail.MailItem
	err := w.feeder.breakers.Call(ctx, "graph", func(ctx context.Context) error {
		fetched, callErr := w.feeder.graph.GetMessage(ctx, messageID)
		item = fetched
		return callErr
	})
	if err != nil {
		return err
	}
	if item.IsRead || !item.HasAttachment {
		return nil
	}

	_, err = w.feeder.ingestItem(ctx, item)
	return err
}

func (w *NotificationWorker) ackOrLog(ctx context.Context, msg queue.Message) {
	if err := w.notifications.Ack(ctx, msg); err != nil {
		logger.Error("notification worker: ack failed", "message_id", msg.MessageID, "error", err.Error())
	}
}
