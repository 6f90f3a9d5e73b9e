package testutil

import (
	"encoding/binary"
	"sync"

	"github.com/roach88/graft/internal/hierarchy"
)

// SequentialGenerator hands out readable identities in order.
//
// Every identity starts with the prefix byte and ends with a big-endian
// counter, e.g. prefix 0xd0 yields d0000000-0000-0000-0000-000000000001,
// then ...0002. Different prefixes never collide, so tests can give sources
// and instances visibly different identity ranges.
//
// Thread-safety: SequentialGenerator is safe for concurrent use via internal mutex.
type SequentialGenerator struct {
	mu     sync.Mutex
	prefix byte
	next   uint64
}

// NewSequentialGenerator creates a generator whose first identity ends in 1.
func NewSequentialGenerator(prefix byte) *SequentialGenerator {
	return &SequentialGenerator{prefix: prefix}
}

// NewID returns the next identity in the sequence.
func (g *SequentialGenerator) NewID() hierarchy.ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return SeqID(g.prefix, g.next)
}

// Issued returns how many identities have been handed out.
func (g *SequentialGenerator) Issued() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next
}

// SeqID builds the identity SequentialGenerator returns for prefix and n.
func SeqID(prefix byte, n uint64) hierarchy.ID {
	var id hierarchy.ID
	id[0] = prefix
	binary.BigEndian.PutUint64(id[8:], n)
	return id
}
