// Package breaker wraps github.com/sony/gobreaker with the per-dependency
// registry and call semantics: closed → open after 5
// consecutive failures, open refuses calls for 60s, half-open allows one
// probe. Workers treat an open breaker as a transient error for retry
// accounting, so Call returns ErrOpen instead of panicking or blocking.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/afoxnyc3/invoice-agent/internal/config"
	"github.com/afoxnyc3/invoice-agent/internal/pkg/logger"
	"github.com/sony/gobreaker"
)

// ErrOpen is returned when a breaker refuses a call because it is open.
var ErrOpen = errors.New("breaker: circuit open")

// Registry owns one breaker per external dependency name ("graph", "llm",
// "blob", "chat", ...). A single process-wide registry is constructed at
// startup and handed to every component that makes outbound calls,
// matching the process-wide circuit-breaker registry pattern.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	cfg      config.BreakerConfig
}

// NewRegistry creates an empty breaker registry. Breakers are created
// lazily on first use so callers never need to pre-register a dependency.
func NewRegistry(cfg config.BreakerConfig) *Registry {
	return &Registry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		cfg:      cfg,
	}
}

func (r *Registry) get(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	failures := r.cfg.Failures()
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // half-open: allow exactly one probe
		Timeout:     r.cfg.OpenDuration(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(breakerName string, from, to gobreaker.State) {
			logger.Warn("breaker state change", "dependency", breakerName, "from", from.String(), "to", to.String())
		},
	})
	r.breakers[name] = cb
	return cb
}

// Call executes fn through the named dependency's breaker. A context
// deadline is the caller's responsibility — fn should respect ctx itself.
func (r *Registry) Call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	cb := r.get(name)
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%s: %w", name, ErrOpen)
		}
		return err
	}
	return nil
}

// State returns the current state of the named breaker, creating it
// (closed) if it does not yet exist. Useful for health/metrics surfaces.
func (r *Registry) State(name string) string {
	return r.get(name).State().String()
}
