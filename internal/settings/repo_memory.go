package settings

import (
	"context"
	"sync"
)

// MemoryRepo is a simple in-memory repository useful for tests.
type MemoryRepo struct {
	mu    sync.Mutex
	s     *Settings
	loads int
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) GetSettings(ctx context.Context) (Settings, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads++
	if r.s == nil {
		return Settings{}, false, nil
	}
	return *r.s, true, nil
}

func (r *MemoryRepo) PutSettings(ctx context.Context, s Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := s
	r.s = &cp
	return nil
}

// Loads reports how many times GetSettings ran.
func (r *MemoryRepo) Loads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads
}
