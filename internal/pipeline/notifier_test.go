package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/afoxnyc3/invoice-agent/internal/breaker"
	"github.com/afoxnyc3/invoice-agent/internal/config"
	"github.com/afoxnyc3/invoice-agent/internal/domain"
	"github.com/afoxnyc3/invoice-agent/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNotifier(t *testing.T, chat *fakeChatSender) (*Notifier, *fakeSQSClient) {
	t.Helper()
	client := newFakeSQSClient()
	notify := queue.New(client, "notify", "notify-poison")
	n := NewNotifier(notify, chat, breaker.NewRegistry(config.BreakerConfig{}))
	return n, client
}

func publishNotify(t *testing.T, client *fakeSQSClient, notice domain.NotificationMessage) queue.Message {
	t.Helper()
	notify := queue.New(client, "notify", "notify-poison")
	require.NoError(t, notify.Publish(context.Background(), notice))
	messages, err := notify.Poll(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	return messages[0]
}

func baseNotice() domain.NotificationMessage {
	return domain.NotificationMessage{
		SchemaVersion: domain.CurrentSchemaVersion, OriginalMessageID: "M-001",
		VendorName: "Acme Inc", Status: domain.NotifyProcessed, RecipientEmail: "ap@example.com",
	}
}

func TestNotifierSendsAndAcks(t *testing.T) {
	chat := &fakeChatSender{}
	n, client := newTestNotifier(t, chat)
	msg := publishNotify(t, client, baseNotice())

	n.process(context.Background(), msg)

	require.Len(t, chat.sent, 1)
	assert.Equal(t, "M-001", chat.sent[0].OriginalMessageID)
	assert.Equal(t, 0, client.pending("notify"))
}

func TestNotifierLeavesInvalidMessageForRetry(t *testing.T) {
	chat := &fakeChatSender{}
	n, client := newTestNotifier(t, chat)
	msg := publishNotify(t, client, domain.NotificationMessage{})

	n.process(context.Background(), msg)

	assert.Empty(t, chat.sent)
	assert.Equal(t, 1, client.pending("notify"))
}

func TestNotifierLeavesMessageUnackedOnSendFailure(t *testing.T) {
	chat := &fakeChatSender{err: errors.New("webhook unreachable")}
	n, client := newTestNotifier(t, chat)
	msg := publishNotify(t, client, baseNotice())

	n.process(context.Background(), msg)

	assert.Empty(t, chat.sent)
	assert.Equal(t, 1, client.pending("notify"))
}

func TestNotifierEscalatesAfterDeadLetterThreshold(t *testing.T) {
	chat := &fakeChatSender{}
	n, client := newTestNotifier(t, chat)
	notify := queue.New(client, "notify", "notify-poison")
	require.NoError(t, notify.Publish(context.Background(), baseNotice()))

	var msg queue.Message
	for i := 0; i < 4; i++ {
		messages, err := notify.Poll(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, messages, 1)
		msg = messages[0]
	}

	n.process(context.Background(), msg)

	assert.Empty(t, chat.sent)
	assert.Equal(t, 0, client.pending("notify"))
	assert.Equal(t, 1, client.pending("notify-poison"))
}
