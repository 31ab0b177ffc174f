package workflow

import (
	"context"
	"sync"
)

// AuditStore persists audit records. Records are append-only; nothing
// ever mutates or deletes an entry.
type AuditStore interface {
	Append(ctx context.Context, record AuditRecord) error
	List(ctx context.Context, limit int) ([]AuditRecord, error)
}

// MemoryAuditStore is an in-memory audit store, used in tests and as a
// fallback when no database path is configured.
type MemoryAuditStore struct {
	mu      sync.Mutex
	records []AuditRecord
}

// NewMemoryAuditStore creates an empty in-memory audit store
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

// Append adds a record
func (s *MemoryAuditStore) Append(ctx context.Context, record AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record)
	return nil
}

// List returns the most recent records, newest first
func (s *MemoryAuditStore) List(ctx context.Context, limit int) ([]AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.records)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]AuditRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}
