// Package ratelimit throttles the Webhook Receiver per notification
// source (the notification's tenant id, or its subscription id when the
// tenant id is empty), so a single
// noisy or malfunctioning subscription cannot starve the others. Built on
// golang.org/x/time/rate, the same limiter library a discovery syncer
// would use for query-reply throttling, over a sharded
// per-key manager shaped like internal/suppression's singleton manager.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/afoxnyc3/invoice-agent/internal/config"
)

// Limiter hands out a golang.org/x/time/rate.Limiter per source key,
// creating one lazily on first use and reusing it afterward. Disabled
// entirely when cfg.Disabled is set.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perSec   rate.Limit
	burst    int
	disabled bool
}

func New(cfg config.RateLimitConfig) *Limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.PerMinute()
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		perSec:   rate.Every(time.Minute / time.Duration(cfg.PerMinute())),
		burst:    burst,
		disabled: cfg.Disabled,
	}
}

// Allow reports whether a request from the given source key may proceed
// right now. Always true when the limiter is disabled.
func (l *Limiter) Allow(sourceKey string) bool {
	if l.disabled {
		return true
	}
	return l.limiterFor(sourceKey).Allow()
}

func (l *Limiter) limiterFor(sourceKey string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	rl, ok := l.limiters[sourceKey]
	if !ok {
		rl = rate.NewLimiter(l.perSec, l.burst)
		l.limiters[sourceKey] = rl
	}
	return rl
}
