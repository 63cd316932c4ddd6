package testutil

import (
	"fmt"
	"sync"
)

// SequenceGenerator generates dispatch ids "<prefix>-1", "<prefix>-2", ...
//
// Unlike engine.FixedGenerator it never runs out, and it can be reset so
// that the same scenario run twice produces identical ids.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int64
}

// NewSequenceGenerator creates a generator. An empty prefix defaults to "d".
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	if prefix == "" {
		prefix = "d"
	}
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id. Implements engine.IDGenerator.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Reset restarts the sequence. After Reset(), the next id ends in 1.
func (g *SequenceGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
