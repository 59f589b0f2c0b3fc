package fraud

import (
	"context"
	"sync"
	"time"

	"github.com/mbd888/fraudguard/internal/syncutil"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
//
// Stored records are treated as immutable snapshots: mutations build a
// modified copy and swap the pointer. The store-wide mutex is held only for
// map access; the read-modify-write itself is serialized per record id
// through a sharded mutex, so concurrent blocks on the same record apply
// one after the other while operations on other records proceed freely.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*AttemptRecord
	order   []string // insertion order, oldest first
	locks   syncutil.ShardedMutex
}

// NewMemoryStore creates an in-memory attempt store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*AttemptRecord),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, rec *AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return ErrDuplicateID
	}
	s.records[rec.ID] = cloneRecord(rec)
	s.order = append(s.order, rec.ID)
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*AttemptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) GetByTransactionID(ctx context.Context, transactionID string) (*AttemptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Oldest match wins when several attempts share a transaction id.
	for _, id := range s.order {
		if rec := s.records[id]; rec.TransactionID == transactionID {
			return cloneRecord(rec), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]*AttemptRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*AttemptRecord
	for i := len(s.order) - 1; i >= 0; i-- {
		if rec := s.records[s.order[i]]; rec.UserID == userID {
			result = append(result, cloneRecord(rec))
		}
	}
	return result, nil
}

func (s *MemoryStore) List(ctx context.Context, offset, limit int) ([]*AttemptRecord, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.order)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return nil, total, nil
	}

	result := make([]*AttemptRecord, 0, limit)
	for i := total - 1 - offset; i >= 0 && len(result) < limit; i-- {
		result = append(result, cloneRecord(s.records[s.order[i]]))
	}
	return result, total, nil
}

func (s *MemoryStore) ApplyUpdate(ctx context.Context, id string, upd Update) (*AttemptRecord, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	next := cloneRecord(rec)
	if upd.RiskLevel != nil {
		next.RiskLevel = *upd.RiskLevel
	}
	if upd.IsBlocked != nil {
		next.IsBlocked = *upd.IsBlocked
	}
	if upd.BlockReason != nil {
		reason := *upd.BlockReason
		next.BlockReason = &reason
	}
	if upd.AttemptCount != nil {
		next.AttemptCount = *upd.AttemptCount
	}
	next.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.records[id] = next
	s.mu.Unlock()

	return cloneRecord(next), nil
}

func (s *MemoryStore) ApplyBlock(ctx context.Context, id, reason string) (*AttemptRecord, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	// Full re-application on every call: latest reason wins, count always
	// increments, even when the record is already blocked.
	next := cloneRecord(rec)
	r := reason
	next.IsBlocked = true
	next.BlockReason = &r
	next.RiskLevel = RiskCritical
	next.AttemptCount++
	next.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.records[id] = next
	s.mu.Unlock()

	return cloneRecord(next), nil
}

func cloneRecord(rec *AttemptRecord) *AttemptRecord {
	out := *rec
	if rec.BlockReason != nil {
		reason := *rec.BlockReason
		out.BlockReason = &reason
	}
	if rec.AdditionalData != nil {
		data := make(map[string]any, len(rec.AdditionalData))
		for k, v := range rec.AdditionalData {
			data[k] = v
		}
		out.AdditionalData = data
	}
	return &out
}
