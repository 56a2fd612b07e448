package scheduler

import (
	"context"
	"sync"

	"collections-engine/internal/accounts"
)

// MemorySource is an in-memory AccountSource for tests.
type MemorySource struct {
	mu    sync.Mutex
	accts []accounts.Account
	Err   error
}

func NewMemorySource(accts ...accounts.Account) *MemorySource {
	return &MemorySource{accts: accts}
}

func (m *MemorySource) Put(a accounts.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.accts {
		if m.accts[i].ID == a.ID {
			m.accts[i] = a
			return
		}
	}
	m.accts = append(m.accts, a)
}

func (m *MemorySource) ListWorkableAccounts(ctx context.Context, statuses []accounts.Status) ([]accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	want := map[accounts.Status]bool{}
	for _, s := range statuses {
		want[s] = true
	}
	out := make([]accounts.Account, 0, len(m.accts))
	for _, a := range m.accts {
		if want[a.Status] {
			out = append(out, a)
		}
	}
	return out, nil
}
