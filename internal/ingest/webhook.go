package ingest

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/afoxnyc3/invoice-agent/internal/domain"
	"github.com/afoxnyc3/invoice-agent/internal/pkg/httputil"
	"github.com/afoxnyc3/invoice-agent/internal/pkg/logger"
	"github.com/afoxnyc3/invoice-agent/internal/queue"
)

// sourceLimiter is the narrow surface ingest needs from internal/ratelimit,
// kept as an interface so tests don't need a real token-bucket limiter.
type sourceLimiter interface {
	Allow(sourceKey string) bool
}

// Receiver is the Webhook Receiver: a public HTTP handler with two
// modes keyed by request shape. It never talks to the mail provider or
// blob/table storage directly — it only validates and enqueues.
type Receiver struct {
	clientStateSecret string
	notifications     *queue.Queue
	limiter           sourceLimiter
}

func NewReceiver(clientStateSecret string, notifications *queue.Queue, limiter sourceLimiter) *Receiver {
	return &Receiver{clientStateSecret: clientStateSecret, notifications: notifications, limiter: limiter}
}

// ServeHTTP implements http.Handler. Validation mode must respond within 3
// seconds or subscription creation fails upstream; notification mode must
// return 202 independent of downstream work, so nothing here blocks on the
// Notification Worker.
func (rcv *Receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if token := r.URL.Query().Get("validationToken"); token != "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(token))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httputil.BadRequest(w, "unreadable body")
		return
	}

	var doc domain.ProviderNotificationBody
	if err := json.Unmarshal(body, &doc); err != nil {
		httputil.BadRequest(w, "invalid notification body")
		return
	}

	for _, entry := range doc.Value {
		rcv.handleEntry(r.Context(), entry)
	}

	httputil.JSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (rcv *Receiver) handleEntry(ctx context.Context, entry domain.ProviderNotificationEntry) {
	sourceKey := entry.TenantID
	if sourceKey == "" {
		sourceKey = entry.SubscriptionID
	}
	if rcv.limiter != nil && !rcv.limiter.Allow(sourceKey) {
		logger.Warn("webhook: rate limited", "source", sourceKey)
		return
	}

	if subtle.ConstantTimeCompare([]byte(entry.ClientState), []byte(rcv.clientStateSecret)) != 1 {
		logger.Warn("webhook: clientState mismatch, dropping", "subscription_id", entry.SubscriptionID)
		return
	}

	notice := domain.ChangeNotification{
		SchemaVersion:  domain.CurrentSchemaVersion,
		SubscriptionID: entry.SubscriptionID,
		Resource:       entry.Resource,
		ChangeType:     entry.ChangeType,
		Timestamp:      time.Now().UTC(),
	}
	if err := rcv.notifications.Publish(ctx, notice); err != nil {
		logger.Error("webhook: publish notification failed", "subscription_id", entry.SubscriptionID, "error", err.Error())
	}
}
