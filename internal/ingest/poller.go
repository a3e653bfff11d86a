package ingest

import (
	"context"
	"time"

	"github.com/afoxnyc3/invoice-agent/internal/breaker"
	"github.com/afoxnyc3/invoice-agent/internal/config"
	"github.com/afoxnyc3/invoice-agent/internal/graphmail"
	"github.com/afoxnyc3/invoice-agent/internal/pkg/logger"
	"github.com/afoxnyc3/invoice-agent/internal/queue"
	"github.com/afoxnyc3/invoice-agent/internal/storage"
)

// Poller is the Timer Poller: the pull-based fallback safety net.
// It applies the exact same sender-validation, duplicate-check,
// attachment-download, and RawMail-emit logic as the Notification Worker
// (via the shared feeder), so the two ingestion paths never diverge.
type Poller struct {
	graph    mailProvider
	feeder   *feeder
	interval time.Duration
	pageSize int
}

func NewPoller(
	graph mailProvider,
	rawMail *queue.Queue,
	blobs storage.BlobStore,
	txlog storage.TransactionLog,
	breakers *breaker.Registry,
	idGen ids,
	mailbox config.MailboxConfig,
	polling config.PollingConfig,
	extractOnIngest bool,
) *Poller {
	pageSize := polling.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Poller{
		graph:    graph,
		feeder:   newFeeder(graph, rawMail, blobs, txlog, breakers, idGen, mailbox, extractOnIngest),
		interval: polling.Interval(),
		pageSize: pageSize,
	}
}

// Run fires Tick on a fixed schedule until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick performs one bounded sweep of unread mail. Exported so a manual
// trigger (health-check hook, CLI one-shot) can invoke it outside the
// ticker loop.
func (p *Poller) Tick(ctx context.Context) {
	var items []graphmail.MailItem
	err := p.feeder.breakers.Call(ctx, "graph", func(ctx context.Context) error {
		fetched, callErr := p.graph.ListUnreadMessages(ctx, p.pageSize)
		items = fetched
		return callErr
	})
	if err != nil {
		logger.Error("poller: list unread failed", "error", err.Error())
		return
	}

	for _, item := range items {
		if !item.HasAttachment {
			continue
		}
		if _, err := p.feeder.ingestItem(ctx, item); err != nil {
			logger.Error("poller: ingest failed", "message_id", item.ID, "error", err.Error())
		}
	}
}
