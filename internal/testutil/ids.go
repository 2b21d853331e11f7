package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates predictable ids ("test-id-1", "test-id-2", ...)
// for components that normally mint UUIDs, such as session creation.
// Deterministic ids keep golden output and assertions stable across runs.
//
// Thread-safety: Next is safe for concurrent use via internal mutex.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator with the given prefix.
// An empty prefix defaults to "test-id".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "test-id"
	}
	return &SequentialIDs{prefix: prefix}
}

// Next returns the next id in sequence.
func (g *SequentialIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
