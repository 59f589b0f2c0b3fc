package fraud

import (
	"context"
	"sync"
	"sync/atomic"
)

// MemoryCounter is an in-process Counter keyed by user id. Each user gets a
// lazily created atomic counter; there is no lock shared across users, so
// heavy traffic for one user never serializes attempts for another.
type MemoryCounter struct {
	counts sync.Map // userID -> *atomic.Int64
}

// NewMemoryCounter creates an in-memory attempt counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{}
}

// NextOrdinal returns the user's prior attempt count and increments it in
// one atomic step.
func (c *MemoryCounter) NextOrdinal(ctx context.Context, userID string) (int, error) {
	v, _ := c.counts.LoadOrStore(userID, new(atomic.Int64))
	// Add returns the new count; the ordinal is the count before this call.
	return int(v.(*atomic.Int64).Add(1) - 1), nil
}

// Peek returns the current stored count for a user without claiming an
// ordinal. Test and diagnostics helper.
func (c *MemoryCounter) Peek(userID string) int {
	v, ok := c.counts.Load(userID)
	if !ok {
		return 0
	}
	return int(v.(*atomic.Int64).Load())
}
