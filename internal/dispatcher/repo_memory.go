package dispatcher

import (
	"context"
	"sync"
	"time"

	"collections-engine/internal/calls"
)

// MemoryRepo is an in-memory Repository for tests. Hooks let tests inject
// failures at each step.
type MemoryRepo struct {
	mu     sync.Mutex
	logs   map[string]calls.CallLog
	order  []string
	phones map[string]PhoneTouch

	InsertErr     error
	TransitionErr error
}

// PhoneTouch is the last values written by TouchPhone.
type PhoneTouch struct {
	LastCalled    time.Time
	LastEngagedAt *time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{logs: map[string]calls.CallLog{}, phones: map[string]PhoneTouch{}}
}

func (r *MemoryRepo) InsertInitiated(ctx context.Context, l calls.CallLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.InsertErr != nil {
		return r.InsertErr
	}
	r.logs[l.ID] = l
	r.order = append(r.order, l.ID)
	if l.PhoneID != "" {
		pt := r.phones[l.PhoneID]
		if l.CallTime.After(pt.LastCalled) {
			pt.LastCalled = l.CallTime
		}
		r.phones[l.PhoneID] = pt
	}
	return nil
}

func (r *MemoryRepo) UpdateCallLog(ctx context.Context, id string, p calls.Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.logs[id]
	if !ok {
		return calls.ErrNotFound
	}
	p.Apply(&l)
	r.logs[id] = l
	return nil
}

func (r *MemoryRepo) TransitionCallLog(ctx context.Context, id string, from calls.Status, p calls.Patch) (calls.CallLog, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.TransitionErr != nil {
		return calls.CallLog{}, false, r.TransitionErr
	}
	l, ok := r.logs[id]
	if !ok {
		return calls.CallLog{}, false, calls.ErrNotFound
	}
	if l.Status != from {
		return l, false, nil
	}
	p.Apply(&l)
	r.logs[id] = l
	return l, true, nil
}

func (r *MemoryRepo) GetCallLog(ctx context.Context, id string) (calls.CallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.logs[id]
	if !ok {
		return calls.CallLog{}, calls.ErrNotFound
	}
	return l, nil
}

func (r *MemoryRepo) GetCallLogByProviderID(ctx context.Context, providerCallID string) (calls.CallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.logs {
		if l.ProviderCallID == providerCallID {
			return l, nil
		}
	}
	return calls.CallLog{}, calls.ErrNotFound
}

func (r *MemoryRepo) TouchPhone(ctx context.Context, phoneID string, lastCalled time.Time, engagedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pt := r.phones[phoneID]
	if lastCalled.After(pt.LastCalled) {
		pt.LastCalled = lastCalled
	}
	if engagedAt != nil && (pt.LastEngagedAt == nil || engagedAt.After(*pt.LastEngagedAt)) {
		e := *engagedAt
		pt.LastEngagedAt = &e
	}
	r.phones[phoneID] = pt
	return nil
}

// Logs returns call logs in insertion order.
func (r *MemoryRepo) Logs() []calls.CallLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calls.CallLog, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.logs[id])
	}
	return out
}

func (r *MemoryRepo) Phone(phoneID string) PhoneTouch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phones[phoneID]
}
