package audit

import (
	"context"
	"fmt"
	"sync"
)

// MemStore is an in-memory Store for tests and ephemeral embedding. Entries
// are deep-copied on the way in and out, and appending is the only mutation
// it supports.
type MemStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Write appends a copy of the entry.
func (m *MemStore) Write(ctx context.Context, e *Entry) error {
	cp, err := cloneEntry(e)
	if err != nil {
		return fmt.Errorf("memstore write: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *cp)
	return nil
}

// Read returns matching entries in the requested order.
func (m *MemStore) Read(ctx context.Context, f Filter) ([]Entry, error) {
	snap, err := m.snapshot()
	if err != nil {
		return nil, err
	}
	return ApplyFilter(snap, f), nil
}

// ReadAll returns every entry in index order.
func (m *MemStore) ReadAll(ctx context.Context) ([]Entry, error) {
	snap, err := m.snapshot()
	if err != nil {
		return nil, err
	}
	return ApplyFilter(snap, Filter{}), nil
}

// Count returns the number of entries matching the filter's match fields.
func (m *MemStore) Count(ctx context.Context, f Filter) (int64, error) {
	f.Limit = 0
	f.Offset = 0
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for i := range m.entries {
		if f.Matches(&m.entries[i]) {
			n++
		}
	}
	return n, nil
}

// Last returns a copy of the most recently appended entry.
func (m *MemStore) Last(ctx context.Context) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.entries) == 0 {
		return nil, nil
	}
	return cloneEntry(&m.entries[len(m.entries)-1])
}

// Close is a no-op.
func (m *MemStore) Close() error {
	return nil
}

func (m *MemStore) snapshot() ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.entries))
	for i := range m.entries {
		cp, err := cloneEntry(&m.entries[i])
		if err != nil {
			return nil, fmt.Errorf("memstore read: %w", err)
		}
		out = append(out, *cp)
	}
	return out, nil
}
