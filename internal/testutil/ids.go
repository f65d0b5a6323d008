package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates predictable build ids: "build-0001",
// "build-0002", ... so catalog contents can be compared exactly.
//
// Safe for concurrent use.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialIDs creates a generator whose ids start with prefix.
// An empty prefix means "build".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "build"
	}
	return &SequentialIDs{prefix: prefix}
}

// Generate returns the next id. It never fails.
func (g *SequentialIDs) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n), nil
}

// Reset restarts the sequence at 1.
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
