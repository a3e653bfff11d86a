package pipeline

import (
	"context"

	"github.com/afoxnyc3/invoice-agent/internal/breaker"
	"github.com/afoxnyc3/invoice-agent/internal/domain"
	"github.com/afoxnyc3/invoice-agent/internal/pkg/logger"
	"github.com/afoxnyc3/invoice-agent/internal/queue"
)

// chatSender is the narrow chatnotify surface the Notifier needs.
type chatSender interface {
	Send(ctx context.Context, msg domain.NotificationMessage) error
}

// Notifier renders each NotificationMessage into the fixed chat-card
// envelope and posts it to the configured webhook.
type Notifier struct {
	notify   *queue.Queue
	chat     chatSender
	breakers *breaker.Registry
}

func NewNotifier(notify *queue.Queue, chat chatSender, breakers *breaker.Registry) *Notifier {
	return &Notifier{notify: notify, chat: chat, breakers: breakers}
}

func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		messages, err := n.notify.Poll(ctx, 10)
		if err != nil {
			logger.Error("notifier: poll notify", "error", err.Error())
			continue
		}
		for _, msg := range messages {
			n.process(ctx, msg)
		}
	}
}

func (n *Notifier) process(ctx context.Context, msg queue.Message) {
	if n.notify.ExceedsDeadLetterThreshold(msg) {
		if err := n.notify.Escalate(ctx, msg); err != nil {
			logger.Error("notifier: escalate", "message_id", msg.MessageID, "error", err.Error())
		}
		return
	}

	var notice domain.NotificationMessage
	if err := msg.Decode(&notice); err != nil || notice.Validate() != nil {
		logger.Error("notifier: invalid notification, leaving for retry", "message_id", msg.MessageID)
		return
	}

	err := n.breakers.Call(ctx, "chat", func(ctx context.Context) error {
		return n.chat.Send(ctx, notice)
	})
	if err != nil {
		logger.Error("notifier: send", "original_message_id", notice.OriginalMessageID, "error", err.Error())
		return
	}

	if err := n.notify.Ack(ctx, msg); err != nil {
		logger.Error("notifier: ack", "message_id", msg.MessageID, "error", err.Error())
	}
}
