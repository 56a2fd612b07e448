package reporting

import (
	"context"
	"sync"
	"time"

	"collections-engine/internal/calls"
)

// MemoryRepo is a simple in-memory reporting repository for tests.
type MemoryRepo struct {
	mu   sync.Mutex
	Logs []calls.CallLog
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) CallLogsBetween(ctx context.Context, from, to time.Time) ([]calls.CallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calls.CallLog, 0)
	for _, l := range r.Logs {
		if l.CallTime.Before(from) || !l.CallTime.Before(to) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}
