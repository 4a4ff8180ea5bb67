package token

import (
	"context"
	"sync"
	"time"

	"github.com/rolegate/rolegate/internal/shared"
)

// MemoryRepository is an in-process Repository used by tests.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[int64]Record

	// Err, when set, is returned by every operation.
	Err error
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[int64]Record)}
}

// Upsert replaces the record of rec.PrincipalID.
func (m *MemoryRepository) Upsert(ctx context.Context, rec Record) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.UpdatedAt = time.Now().UTC()
	m.records[rec.PrincipalID] = rec
	return nil
}

// Latest returns the stored record of principalID.
func (m *MemoryRepository) Latest(ctx context.Context, principalID int64) (Record, error) {
	if m.Err != nil {
		return Record{}, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[principalID]
	if !ok {
		return Record{}, shared.Missing("token")
	}
	return rec, nil
}

// DeleteExpired drops records expiring at or before the cutoff.
func (m *MemoryRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rec := range m.records {
		if !rec.ExpiresAt.After(before) {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

// Remove deletes the record of principalID.
func (m *MemoryRepository) Remove(principalID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, principalID)
}

// Len returns the number of stored records.
func (m *MemoryRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
