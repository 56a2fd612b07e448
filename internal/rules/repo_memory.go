package rules

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory repository for tests.
type MemoryRepo struct {
	mu    sync.Mutex
	rules map[string]Rule
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rules: map[string]Rule{}} }

func (r *MemoryRepo) InsertRule(ctx context.Context, rule Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[rule.ID] = rule
	return nil
}

func (r *MemoryRepo) ListRules(ctx context.Context) ([]Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Rule, 0, len(r.rules))
	for _, v := range r.rules {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepo) DeleteRule(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[id]; !ok {
		return ErrNotFound
	}
	delete(r.rules, id)
	return nil
}

func (r *MemoryRepo) DeletePendingRules(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, v := range r.rules {
		if !v.IsImplemented {
			delete(r.rules, id)
			n++
		}
	}
	return n, nil
}

// MarkImplemented flips a rule for tests.
func (r *MemoryRepo) MarkImplemented(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.rules[id]; ok {
		v.IsImplemented = true
		r.rules[id] = v
	}
}
