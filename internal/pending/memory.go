// File: internal/pending/memory.go
package pending

import (
	"context"
	"sync"
)

// MemoryStore keeps pending actions in process. It is the default when no
// database is configured.
type MemoryStore struct {
	mu    sync.Mutex
	slots map[string]PendingAction
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string]PendingAction)}
}

func (m *MemoryStore) Put(_ context.Context, p PendingAction) (*PendingAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.slots[p.UserID]
	m.slots[p.UserID] = p
	if !ok {
		return nil, nil
	}
	return &prev, nil
}

func (m *MemoryStore) Take(_ context.Context, userID string) (*PendingAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.slots[userID]
	if !ok {
		return nil, nil
	}
	delete(m.slots, userID)
	return &p, nil
}

func (m *MemoryStore) Restore(_ context.Context, p PendingAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[p.UserID]; !ok {
		m.slots[p.UserID] = p
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, userID)
	return nil
}
