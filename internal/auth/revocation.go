package auth

import (
	"context"
	"sync"
	"time"
)

// RevocationStore remembers logged-out tickets until they expire.
type RevocationStore interface {
	Revoke(ctx context.Context, ticketID string, until time.Time) error
	IsRevoked(ctx context.Context, ticketID string) (bool, error)
}

// MemoryRevocations is a process-local RevocationStore.
type MemoryRevocations struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocations creates an empty in-memory revocation list.
func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{entries: make(map[string]time.Time), now: time.Now}
}

// Revoke records ticketID and drops entries that have expired.
func (m *MemoryRevocations) Revoke(ctx context.Context, ticketID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, exp := range m.entries {
		if !exp.After(now) {
			delete(m.entries, id)
		}
	}
	if until.After(now) {
		m.entries[ticketID] = until
	}
	return nil
}

// IsRevoked reports whether ticketID was revoked and has not expired yet.
func (m *MemoryRevocations) IsRevoked(ctx context.Context, ticketID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.entries[ticketID]
	return ok && exp.After(m.now()), nil
}

// Len returns the number of tracked revocations.
func (m *MemoryRevocations) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
