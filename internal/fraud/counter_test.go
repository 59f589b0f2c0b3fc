package fraud

import (
	"context"
	"sort"
	"sync"
	"testing"
)

func TestMemoryCounter_Sequential(t *testing.T) {
	c := NewMemoryCounter()
	ctx := context.Background()

	for want := 0; want < 5; want++ {
		got, err := c.NextOrdinal(ctx, "user-1")
		if err != nil {
			t.Fatalf("NextOrdinal: %v", err)
		}
		if got != want {
			t.Fatalf("NextOrdinal = %d, want %d", got, want)
		}
	}

	if stored := c.Peek("user-1"); stored != 5 {
		t.Fatalf("stored count = %d, want 5", stored)
	}

	// A different user starts from zero.
	got, err := c.NextOrdinal(ctx, "user-2")
	if err != nil {
		t.Fatalf("NextOrdinal: %v", err)
	}
	if got != 0 {
		t.Fatalf("fresh user ordinal = %d, want 0", got)
	}
	if stored := c.Peek("user-never-seen"); stored != 0 {
		t.Fatalf("unseen user count = %d, want 0", stored)
	}
}

func TestMemoryCounter_ConcurrentClaimsAreGapless(t *testing.T) {
	c := NewMemoryCounter()
	ctx := context.Background()

	const n = 200
	ordinals := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ord, err := c.NextOrdinal(ctx, "user-1")
			if err != nil {
				t.Errorf("NextOrdinal: %v", err)
				return
			}
			ordinals[i] = ord
		}(i)
	}
	wg.Wait()

	sort.Ints(ordinals)
	for i, ord := range ordinals {
		if ord != i {
			t.Fatalf("ordinals have a gap or duplicate at position %d: got %d", i, ord)
		}
	}

	if stored := c.Peek("user-1"); stored != n {
		t.Fatalf("stored count = %d, want %d", stored, n)
	}
}
