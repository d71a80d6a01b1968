package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs hands out predictable batch ids: prefix-0001, prefix-0002, ...
//
// Thread-safety: safe for concurrent use.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceIDs creates a generator. An empty prefix defaults to "batch".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "batch"
	}
	return &SequenceIDs{prefix: prefix}
}

// Generate returns the next id.
func (g *SequenceIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
