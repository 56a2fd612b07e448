package rotation

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu    sync.Mutex
	state map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: map[string]State{}}
}

func (m *MemoryStore) Get(ctx context.Context, accountID string) (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.state[accountID]
	return st, ok, nil
}

func (m *MemoryStore) Put(ctx context.Context, accountID string, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[accountID] = s
	return nil
}
