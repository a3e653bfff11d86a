package subscriptionmgr

import (
	"context"
	"fmt"
	"time"

	"github.com/afoxnyc3/invoice-agent/internal/breaker"
	"github.com/afoxnyc3/invoice-agent/internal/config"
	"github.com/afoxnyc3/invoice-agent/internal/domain"
	"github.com/afoxnyc3/invoice-agent/internal/graphmail"
	"github.com/afoxnyc3/invoice-agent/internal/pkg/distlock"
	"github.com/afoxnyc3/invoice-agent/internal/pkg/logger"
)

// lockKey is the single distributed-lock name every Manager instance
// contends for — there is exactly one logical subscription to manage, so
// one key is enough, unlike the per-campaign lock keys a scheduler with
// many independent resources would use.
const lockKey = "subscription-manager"

// subscriber is the narrow graphmail.Client surface the Manager needs.
type subscriber interface {
	CreateSubscription(ctx context.Context, webhookURL, clientState, resource string, expiry time.Duration) (graphmail.Subscription, error)
	RenewSubscription(ctx context.Context, subscriptionID string, expiry time.Duration) (graphmail.Subscription, error)
}

// registry is the narrow storage.SubscriptionRegistry surface the Manager
// needs.
type registry interface {
	GetActive(ctx context.Context) (domain.Subscription, bool, error)
	Upsert(ctx context.Context, s domain.Subscription) error
	Activate(ctx context.Context, newSub domain.Subscription, deactivateID string) error
}

// ids mints the new subscription row's id when none is supplied by the
// provider response.
type ids interface {
	NewID() string
}

// lockFactory builds a fresh DistLock bound to key, with a random ownership
// token minted per attempt — matching how distlock.NewLock is meant to be
// called once per acquire attempt rather than reused across ticks.
type lockFactory func(key string, ttl time.Duration) distlock.DistLock

// Manager runs the Subscription Manager's lifecycle on a schedule: create a
// subscription when none is active, renew one nearing expiry, and leave a
// healthy subscription alone.
type Manager struct {
	registry registry
	graph    subscriber
	lock     lockFactory
	breakers *breaker.Registry
	ids      ids
	graphCfg config.GraphConfig
	subCfg   config.SubscriptionConfig
	resource string
}

// New builds a Manager. resource is the provider resource path to watch
// (the configured ingest mailbox's messages collection).
func New(
	reg registry,
	graph subscriber,
	lock lockFactory,
	breakers *breaker.Registry,
	idGen ids,
	graphCfg config.GraphConfig,
	subCfg config.SubscriptionConfig,
	resource string,
) *Manager {
	return &Manager{
		registry: reg, graph: graph, lock: lock, breakers: breakers,
		ids: idGen, graphCfg: graphCfg, subCfg: subCfg, resource: resource,
	}
}

// Run blocks, ticking every subCfg.TickInterval() until ctx is cancelled,
// invoking tick on each firing plus once immediately on startup so a fresh
// deployment doesn't wait a full interval before its first subscription
// exists.
func (m *Manager) Run(ctx context.Context) {
	m.tick(ctx)

	ticker := time.NewTicker(m.subCfg.TickInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	l := m.lock(lockKey, m.subCfg.TickInterval())
	acquired, err := l.Acquire(ctx)
	if err != nil {
		logger.Error("subscriptionmgr: acquire lock", "error", err.Error())
		return
	}
	if !acquired {
		logger.Info("subscriptionmgr: another instance holds the lock, skipping this tick")
		return
	}
	defer func() {
		if err := l.Release(ctx); err != nil {
			logger.Error("subscriptionmgr: release lock", "error", err.Error())
		}
	}()

	if err := m.reconcile(ctx); err != nil {
		logger.Error("subscriptionmgr: reconcile", "error", err.Error())
	}
}

// reconcile implements the lifecycle: create if absent or past its stored
// expiry, renew if expiring, otherwise leave the active subscription
// untouched. Renewal failures and
// missed expirations are not escalated here — they retry on the next
// scheduled tick, and the Timer Poller covers any gap in push coverage in
// the meantime.
func (m *Manager) reconcile(ctx context.Context) error {
	active, found, err := m.registry.GetActive(ctx)
	if err != nil {
		return fmt.Errorf("subscriptionmgr: get_active: %w", err)
	}

	if !found {
		return m.create(ctx, "")
	}

	now := time.Now().UTC()
	if !now.Before(active.ExpirationUTC) {
		return m.create(ctx, active.SubscriptionID)
	}
	if !active.NeedsRenewal(now, m.subCfg.RenewBefore()) {
		return nil
	}

	return m.renew(ctx, active)
}

func (m *Manager) create(ctx context.Context, deactivateID string) error {
	var created graphmail.Subscription
	err := m.breakers.Call(ctx, "graph", func(ctx context.Context) error {
		var callErr error
		created, callErr = m.graph.CreateSubscription(
			ctx, m.graphCfg.WebhookURL, m.graphCfg.ClientState, m.resource,
			m.graphCfg.MaxSubscriptionLifetime(),
		)
		return callErr
	})
	if err != nil {
		return fmt.Errorf("subscriptionmgr: create_subscription: %w", err)
	}

	now := time.Now().UTC()
	row := domain.Subscription{
		SubscriptionID:    nonEmpty(created.ID, m.ids.NewID()),
		Resource:          created.Resource,
		ExpirationUTC:     created.ExpiresAt,
		ClientStateSecret: m.graphCfg.ClientState,
		IsActive:          true,
		CreatedAt:         now,
		LastRenewedAt:     now,
	}
	if err := m.registry.Activate(ctx, row, deactivateID); err != nil {
		return fmt.Errorf("subscriptionmgr: activate new subscription: %w", err)
	}
	logger.Info("subscriptionmgr: created subscription", "subscription_id", row.SubscriptionID, "expires_at", row.ExpirationUTC)
	return nil
}

func (m *Manager) renew(ctx context.Context, active domain.Subscription) error {
	var renewed graphmail.Subscription
	err := m.breakers.Call(ctx, "graph", func(ctx context.Context) error {
		var callErr error
		renewed, callErr = m.graph.RenewSubscription(ctx, active.SubscriptionID, m.graphCfg.MaxSubscriptionLifetime())
		return callErr
	})
	if err != nil {
		// The provider may have already let the subscription lapse. This
		// tick just reports the failure; once the stored expiry has passed,
		// reconcile creates a fresh subscription instead of renewing.
		return fmt.Errorf("subscriptionmgr: renew_subscription %s: %w", active.SubscriptionID, err)
	}

	active.ExpirationUTC = renewed.ExpiresAt
	active.LastRenewedAt = time.Now().UTC()
	if err := m.registry.Upsert(ctx, active); err != nil {
		return fmt.Errorf("subscriptionmgr: upsert renewed subscription: %w", err)
	}
	logger.Info("subscriptionmgr: renewed subscription", "subscription_id", active.SubscriptionID, "expires_at", active.ExpirationUTC)
	return nil
}

func nonEmpty(primary, fallback string) string {
	if primary != "" {
		return primary
	}
	return fallback
}
