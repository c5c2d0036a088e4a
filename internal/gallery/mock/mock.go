// Package mock provides an in-memory gallery.Persister for testing.
package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/kozaktomas/faceid/internal/gallery"
)

// MockPersister is a mock implementation of gallery.Persister
type MockPersister struct {
	mu         sync.RWMutex
	identities map[string]gallery.Identity

	// Error injection
	LoadError   error
	SaveError   error
	DeleteError error
	FlushError  error
	CloseError  error

	// Call tracking
	SaveCalls   int
	DeleteCalls int
	FlushCalls  int
	Closed      bool
}

// NewMockPersister creates a new mock persister
func NewMockPersister() *MockPersister {
	return &MockPersister{
		identities: make(map[string]gallery.Identity),
	}
}

// AddIdentity seeds an identity that Load will return
func (m *MockPersister) AddIdentity(id gallery.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id.Key == "" {
		id.Key = gallery.NormalizeName(id.Name)
	}
	m.identities[id.Key] = id
}

// Stored returns the persisted identity under key
func (m *MockPersister) Stored(key string) (gallery.Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.identities[key]
	return id, ok
}

// Len returns the number of persisted identities
func (m *MockPersister) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.identities)
}

// Load returns every stored identity ordered by key
func (m *MockPersister) Load(ctx context.Context) ([]gallery.Identity, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]gallery.Identity, 0, len(m.identities))
	for _, id := range m.identities {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Save stores an identity
func (m *MockPersister) Save(ctx context.Context, identity gallery.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls++
	if m.SaveError != nil {
		return m.SaveError
	}
	m.identities[identity.Key] = identity
	return nil
}

// Delete removes an identity
func (m *MockPersister) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	if m.DeleteError != nil {
		return m.DeleteError
	}
	delete(m.identities, key)
	return nil
}

// Flush records the call
func (m *MockPersister) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FlushCalls++
	return m.FlushError
}

// Close marks the persister closed
func (m *MockPersister) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return m.CloseError
}
