//go:build integration

package fraud

import (
	"context"
	"sync"
	"testing"

	"github.com/mbd888/fraudguard/internal/testutil"
)

func setupPostgres(t *testing.T) (*PostgresStore, *PostgresCounter, func()) {
	t.Helper()

	db, cleanup := testutil.PGTest(t)
	store := NewPostgresStore(db)
	counter := NewPostgresCounter(db)

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		cleanup()
		t.Fatalf("store migrate: %v", err)
	}
	if err := counter.Migrate(ctx); err != nil {
		cleanup()
		t.Fatalf("counter migrate: %v", err)
	}
	return store, counter, cleanup
}

func TestPostgresStore_CRUD(t *testing.T) {
	store, _, cleanup := setupPostgres(t)
	defer cleanup()
	ctx := context.Background()

	rec := newTestRecord("pg-rec-1", "pg-txn-1", "pg-user-1")
	rec.DeviceID = "device-1"
	rec.AdditionalData = map[string]any{"channel": "web"}

	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := store.Insert(ctx, rec); err != ErrDuplicateID {
		t.Errorf("duplicate insert: expected ErrDuplicateID, got %v", err)
	}

	got, err := store.GetByID(ctx, "pg-rec-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.TransactionID != "pg-txn-1" || got.DeviceID != "device-1" {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.AdditionalData["channel"] != "web" {
		t.Errorf("additional data lost: %+v", got.AdditionalData)
	}

	if _, err := store.GetByID(ctx, "missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStore_TransactionLookupAndLists(t *testing.T) {
	store, _, cleanup := setupPostgres(t)
	defer cleanup()
	ctx := context.Background()

	first := newTestRecord("pg-rec-1", "pg-txn-shared", "pg-user-1")
	second := newTestRecord("pg-rec-2", "pg-txn-shared", "pg-user-1")
	second.CreatedAt = second.CreatedAt.Add(1)
	second.UpdatedAt = second.CreatedAt
	third := newTestRecord("pg-rec-3", "pg-txn-other", "pg-user-2")

	for _, rec := range []*AttemptRecord{first, second, third} {
		if err := store.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert %s: %v", rec.ID, err)
		}
	}

	got, err := store.GetByTransactionID(ctx, "pg-txn-shared")
	if err != nil {
		t.Fatalf("GetByTransactionID: %v", err)
	}
	if got.ID != "pg-rec-1" {
		t.Errorf("expected oldest record pg-rec-1, got %s", got.ID)
	}

	mine, err := store.ListByUser(ctx, "pg-user-1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != "pg-rec-2" {
		t.Errorf("ListByUser: %+v", idsOf(mine))
	}

	page, total, err := store.List(ctx, 0, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 || len(page) != 2 {
		t.Errorf("List: %d records, total %d, want 2/3", len(page), total)
	}
}

func TestPostgresStore_ApplyBlock(t *testing.T) {
	store, _, cleanup := setupPostgres(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.Insert(ctx, newTestRecord("pg-rec-1", "pg-txn-1", "pg-user-1")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ApplyBlock(ctx, "pg-rec-1", "concurrent"); err != nil {
				t.Errorf("ApplyBlock: %v", err)
			}
		}()
	}
	wg.Wait()

	rec, err := store.GetByID(ctx, "pg-rec-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if rec.AttemptCount != n {
		t.Errorf("attempt count = %d, want %d (lost increments)", rec.AttemptCount, n)
	}
	if !rec.IsBlocked || rec.RiskLevel != RiskCritical {
		t.Errorf("final state: %+v", rec)
	}

	if _, err := store.ApplyBlock(ctx, "missing", "reason"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresCounter_ConcurrentClaims(t *testing.T) {
	_, counter, cleanup := setupPostgres(t)
	defer cleanup()
	ctx := context.Background()

	const n = 20
	ordinals := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ord, err := counter.NextOrdinal(ctx, "pg-user-1")
			if err != nil {
				t.Errorf("NextOrdinal: %v", err)
				return
			}
			ordinals[i] = ord
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool, n)
	for _, ord := range ordinals {
		if ord < 0 || ord >= n || seen[ord] {
			t.Fatalf("ordinal %d out of range or duplicated: %v", ord, ordinals)
		}
		seen[ord] = true
	}
}
