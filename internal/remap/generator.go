package remap

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/graft/internal/hierarchy"
)

// Generator produces candidate node identities.
//
// Candidates are not trusted to be unique; Assign checks every candidate
// against the reserved sets and retries on collision.
type Generator interface {
	NewID() hierarchy.ID
}

// UUIDv7Generator generates time-sortable UUIDv7 identities.
//
// UUIDv7 embeds a timestamp in the most significant bits, so identities of
// nodes created by one import sort together and after older ones. This is
// helpful when reading persisted documents.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewID creates a new UUIDv7.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) NewID() hierarchy.ID {
	return uuid.Must(uuid.NewV7())
}

// UUIDv4Generator generates random UUIDv4 identities.
//
// Thread-safety: UUIDv4Generator is stateless and safe for concurrent use.
type UUIDv4Generator struct{}

// NewID creates a new random UUIDv4.
func (UUIDv4Generator) NewID() hierarchy.ID {
	return uuid.New()
}

// NewGenerator returns the generator for an identity version ("v7" or "v4").
func NewGenerator(version string) (Generator, error) {
	switch version {
	case "", "v7":
		return UUIDv7Generator{}, nil
	case "v4":
		return UUIDv4Generator{}, nil
	default:
		return nil, fmt.Errorf("unknown identity version %q", version)
	}
}

// FixedGenerator returns predetermined identities for testing.
//
// Tests provide a known sequence, including deliberate collisions, and can
// assert the exact identities an import produces.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []hierarchy.ID
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
// Example:
//
//	gen := NewFixedGenerator(a, b)
//	gen.NewID() // a
//	gen.NewID() // b
//	gen.NewID() // panic: all identities exhausted
func NewFixedGenerator(ids ...hierarchy.ID) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// NewID returns the next predetermined identity.
//
// Panics if all identities have been consumed. This is a fail-fast approach
// to catch test misconfiguration.
func (g *FixedGenerator) NewID() hierarchy.ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all identities exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
