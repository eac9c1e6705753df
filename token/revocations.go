package token

import (
	"context"
	"sync"
	"time"
)

// MemoryRevocations is an in-process RevocationStore.
// Entries are dropped once the revoked token would have expired anyway.
type MemoryRevocations struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocations creates an empty in-memory revocation store
func NewMemoryRevocations() *MemoryRevocations {
	return NewMemoryRevocationsWithClock(time.Now)
}

// NewMemoryRevocationsWithClock creates an in-memory revocation store using the given time source.
// It should share the clock of the Service it is attached to.
func NewMemoryRevocationsWithClock(now func() time.Time) *MemoryRevocations {
	return &MemoryRevocations{
		entries: make(map[string]time.Time),
		now:     now,
	}
}

// Revoke marks the token id as revoked until the given time.
// It returns ErrAlreadyRevoked when the id is still revoked.
func (m *MemoryRevocations) Revoke(_ context.Context, tokenID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.entries[tokenID]; ok && m.now().Before(current) {
		return ErrAlreadyRevoked
	}
	m.entries[tokenID] = until
	m.pruneLocked()
	return nil
}

// IsRevoked reports whether the token id is revoked
func (m *MemoryRevocations) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	until, ok := m.entries[tokenID]
	if !ok {
		return false, nil
	}
	return m.now().Before(until), nil
}

// Len returns the number of tracked entries
func (m *MemoryRevocations) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryRevocations) pruneLocked() {
	now := m.now()
	for id, until := range m.entries {
		if !now.Before(until) {
			delete(m.entries, id)
		}
	}
}
