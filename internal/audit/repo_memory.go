package audit

import (
	"context"
	"sync"
)

// MemoryRepo keeps events in append order. Err, when set, fails every Append.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, e)
	return nil
}

// ListEvents walks backwards so the newest matching events come first.
func (r *MemoryRepo) ListEvents(ctx context.Context, f Filter) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	limit := f.EffectiveLimit()
	out := make([]Event, 0)
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if f.Matches(r.events[i]) {
			out = append(out, r.events[i])
		}
	}
	return out, nil
}

// Events returns every event in append order.
func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
