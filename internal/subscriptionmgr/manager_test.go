package subscriptionmgr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/afoxnyc3/invoice-agent/internal/breaker"
	"github.com/afoxnyc3/invoice-agent/internal/config"
	"github.com/afoxnyc3/invoice-agent/internal/domain"
	"github.com/afoxnyc3/invoice-agent/internal/graphmail"
	"github.com/afoxnyc3/invoice-agent/internal/pkg/distlock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	active       domain.Subscription
	found        bool
	activated    []domain.Subscription
	deactivated  []string
	upserted     []domain.Subscription
	getActiveErr error
}

func (f *fakeRegistry) GetActive(_ context.Context) (domain.Subscription, bool, error) {
	return f.active, f.found, f.getActiveErr
}

func (f *fakeRegistry) Upsert(_ context.Context, s domain.Subscription) error {
	f.upserted = append(f.upserted, s)
	return nil
}

func (f *fakeRegistry) Activate(_ context.Context, newSub domain.Subscription, deactivateID string) error {
	f.activated = append(f.activated, newSub)
	if deactivateID != "" {
		f.deactivated = append(f.deactivated, deactivateID)
	}
	return nil
}

type fakeSubscriber struct {
	created graphmail.Subscription
	renewed graphmail.Subscription
	err     error
}

func (f *fakeSubscriber) CreateSubscription(_ context.Context, _, _, _ string, _ time.Duration) (graphmail.Subscription, error) {
	return f.created, f.err
}

func (f *fakeSubscriber) RenewSubscription(_ context.Context, _ string, _ time.Duration) (graphmail.Subscription, error) {
	return f.renewed, f.err
}

type fakeIDGen struct{ n int }

func (g *fakeIDGen) NewID() string {
	g.n++
	return "sub-generated-1"
}

type fakeLock struct {
	acquireResult bool
	acquireErr    error
	released      bool
}

func (l *fakeLock) Acquire(_ context.Context) (bool, error) { return l.acquireResult, l.acquireErr }
func (l *fakeLock) Release(_ context.Context) error         { l.released = true; return nil }

func lockFactoryFor(l *fakeLock) lockFactory {
	return func(_ string, _ time.Duration) distlock.DistLock { return l }
}

func testGraphConfig() config.GraphConfig {
	return config.GraphConfig{WebhookURL: "https://example.com/webhook", ClientState: "shared-secret", SubscriptionTTL: 70}
}

func TestManagerCreatesSubscriptionWhenNoneActive(t *testing.T) {
	reg := &fakeRegistry{found: false}
	sub := &fakeSubscriber{created: graphmail.Subscription{
		ID: "sub-1", Resource: "me/mailFolders/inbox/messages", ExpiresAt: time.Now().Add(70 * time.Hour),
	}}
	m := New(reg, sub, lockFactoryFor(&fakeLock{acquireResult: true}), breaker.NewRegistry(config.BreakerConfig{}),
		&fakeIDGen{}, testGraphConfig(), config.SubscriptionConfig{}, "me/mailFolders/inbox/messages")

	require.NoError(t, m.reconcile(context.Background()))

	require.Len(t, reg.activated, 1)
	assert.Equal(t, "sub-1", reg.activated[0].SubscriptionID)
	assert.True(t, reg.activated[0].IsActive)
	assert.Empty(t, reg.deactivated)
}

func TestManagerRenewsSubscriptionNearingExpiry(t *testing.T) {
	active := domain.Subscription{
		SubscriptionID: "sub-old", Resource: "me/mailFolders/inbox/messages",
		ExpirationUTC: time.Now().Add(10 * time.Hour), IsActive: true,
	}
	reg := &fakeRegistry{found: true, active: active}
	sub := &fakeSubscriber{renewed: graphmail.Subscription{ID: "sub-old", ExpiresAt: time.Now().Add(70 * time.Hour)}}
	m := New(reg, sub, lockFactoryFor(&fakeLock{acquireResult: true}), breaker.NewRegistry(config.BreakerConfig{}),
		&fakeIDGen{}, testGraphConfig(), config.SubscriptionConfig{}, "me/mailFolders/inbox/messages")

	require.NoError(t, m.reconcile(context.Background()))

	require.Len(t, reg.upserted, 1)
	assert.Equal(t, "sub-old", reg.upserted[0].SubscriptionID)
	assert.Empty(t, reg.activated)
}

func TestManagerLeavesHealthySubscriptionAlone(t *testing.T) {
	active := domain.Subscription{
		SubscriptionID: "sub-healthy", ExpirationUTC: time.Now().Add(60 * time.Hour), IsActive: true,
	}
	reg := &fakeRegistry{found: true, active: active}
	sub := &fakeSubscriber{}
	m := New(reg, sub, lockFactoryFor(&fakeLock{acquireResult: true}), breaker.NewRegistry(config.BreakerConfig{}),
		&fakeIDGen{}, testGraphConfig(), config.SubscriptionConfig{}, "me/mailFolders/inbox/messages")

	require.NoError(t, m.reconcile(context.Background()))

	assert.Empty(t, reg.upserted)
	assert.Empty(t, reg.activated)
}

func TestManagerSkipsTickWhenLockNotAcquired(t *testing.T) {
	reg := &fakeRegistry{found: false}
	sub := &fakeSubscriber{}
	lock := &fakeLock{acquireResult: false}
	m := New(reg, sub, lockFactoryFor(lock), breaker.NewRegistry(config.BreakerConfig{}),
		&fakeIDGen{}, testGraphConfig(), config.SubscriptionConfig{}, "me/mailFolders/inbox/messages")

	m.tick(context.Background())

	assert.Empty(t, reg.activated)
	assert.False(t, lock.released)
}

func TestManagerRenewalFailureLeavesActiveRowUntouched(t *testing.T) {
	active := domain.Subscription{SubscriptionID: "sub-old", ExpirationUTC: time.Now().Add(10 * time.Hour), IsActive: true}
	reg := &fakeRegistry{found: true, active: active}
	sub := &fakeSubscriber{err: errors.New("provider unavailable")}
	m := New(reg, sub, lockFactoryFor(&fakeLock{acquireResult: true}), breaker.NewRegistry(config.BreakerConfig{}),
		&fakeIDGen{}, testGraphConfig(), config.SubscriptionConfig{}, "me/mailFolders/inbox/messages")

	err := m.reconcile(context.Background())

	require.Error(t, err)
	assert.Empty(t, reg.upserted)
}
