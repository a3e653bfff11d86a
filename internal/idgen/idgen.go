// Package idgen mints the sortable lexicographic event ids used as the
// Transaction Log's row key and threaded through every queue message for
// cross-stage correlation (the transaction/event id every message carries).
package idgen

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator mints monotonically-increasing ULIDs. oklog/ulid's Monotonic
// entropy source is not safe for concurrent use by itself, so Generator
// wraps it in a mutex — every worker process owns exactly one Generator.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New builds a Generator seeded from crypto/rand.
func New() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// NewID mints a new event id from the current time. IDs minted by the same
// Generator within the same millisecond still sort strictly after one
// another.
func (g *Generator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
	return strings.ToLower(id.String())
}

var defaultGenerator = New()

// NewID mints an event id using the package-level default generator. Most
// callers want this; a dedicated Generator from New keeps its own monotonic
// sequence. Every Generator draws its entropy from crypto/rand.
func NewID() string {
	return defaultGenerator.NewID()
}
