package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"collections-engine/internal/accounts"
	"collections-engine/internal/audit"
	"collections-engine/internal/calls"
	"collections-engine/internal/rules"
	"collections-engine/internal/settings"
)

// Memory is the in-process counterpart of Postgres for tests and local runs.
type Memory struct {
	mu       sync.Mutex
	accounts map[string]accounts.Account
	phoneAcc map[string]string // phone id -> account id
	logs     map[string]calls.CallLog
	settings *settings.Settings
	rules    *rules.MemoryRepo
	audit    *audit.MemoryRepo
}

func NewMemory() *Memory {
	return &Memory{
		accounts: map[string]accounts.Account{},
		phoneAcc: map[string]string{},
		logs:     map[string]calls.CallLog{},
		rules:    rules.NewMemoryRepo(),
		audit:    audit.NewMemoryRepo(),
	}
}

// PutAccount inserts or replaces an account and its phones.
func (m *Memory) PutAccount(a accounts.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.Phones = append([]accounts.PhoneNumber(nil), a.Phones...)
	for i := range a.Phones {
		a.Phones[i].AccountID = a.ID
		m.phoneAcc[a.Phones[i].ID] = a.ID
	}
	m.accounts[a.ID] = a
}

func (m *Memory) ListWorkableAccounts(ctx context.Context, statuses []accounts.Status) ([]accounts.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[accounts.Status]bool{}
	for _, s := range statuses {
		want[s] = true
	}
	out := make([]accounts.Account, 0)
	for _, a := range m.accounts {
		if !want[a.Status] {
			continue
		}
		a.Phones = append([]accounts.PhoneNumber(nil), a.Phones...)
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) touchLocked(phoneID string, lastCalled time.Time, engagedAt *time.Time) {
	accID, ok := m.phoneAcc[phoneID]
	if !ok {
		return
	}
	a := m.accounts[accID]
	for i := range a.Phones {
		p := &a.Phones[i]
		if p.ID != phoneID {
			continue
		}
		if p.LastCalled == nil || lastCalled.After(*p.LastCalled) {
			t := lastCalled
			p.LastCalled = &t
		}
		if engagedAt != nil && (p.LastEngagedAt == nil || engagedAt.After(*p.LastEngagedAt)) {
			t := *engagedAt
			p.LastEngagedAt = &t
		}
	}
	m.accounts[accID] = a
}

func (m *Memory) InsertInitiated(ctx context.Context, l calls.CallLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[l.ID] = l
	if l.PhoneID != "" {
		m.touchLocked(l.PhoneID, l.CallTime, nil)
	}
	return nil
}

func (m *Memory) UpdateCallLog(ctx context.Context, id string, p calls.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[id]
	if !ok {
		return calls.ErrNotFound
	}
	p.Apply(&l)
	m.logs[id] = l
	return nil
}

func (m *Memory) TransitionCallLog(ctx context.Context, id string, from calls.Status, p calls.Patch) (calls.CallLog, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[id]
	if !ok {
		return calls.CallLog{}, false, calls.ErrNotFound
	}
	if l.Status != from {
		return l, false, nil
	}
	p.Apply(&l)
	m.logs[id] = l
	return l, true, nil
}

func (m *Memory) GetCallLog(ctx context.Context, id string) (calls.CallLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[id]
	if !ok {
		return calls.CallLog{}, calls.ErrNotFound
	}
	return l, nil
}

func (m *Memory) GetCallLogByProviderID(ctx context.Context, providerCallID string) (calls.CallLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if providerCallID == "" {
		return calls.CallLog{}, calls.ErrNotFound
	}
	for _, l := range m.logs {
		if l.ProviderCallID == providerCallID {
			return l, nil
		}
	}
	return calls.CallLog{}, calls.ErrNotFound
}

func (m *Memory) TouchPhone(ctx context.Context, phoneID string, lastCalled time.Time, engagedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touchLocked(phoneID, lastCalled, engagedAt)
	return nil
}

func (m *Memory) ListCallLogs(ctx context.Context, f calls.Filter) ([]calls.CallLog, error) {
	m.mu.Lock()
	out := make([]calls.CallLog, 0)
	for _, l := range m.logs {
		if f.Matches(l) {
			out = append(out, l)
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CallTime.Equal(out[j].CallTime) {
			return out[i].CallTime.After(out[j].CallTime)
		}
		return out[i].ID < out[j].ID
	})
	if n := f.EffectiveLimit(); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *Memory) CallLogsBetween(ctx context.Context, from, to time.Time) ([]calls.CallLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := calls.Filter{From: from, To: to}
	out := make([]calls.CallLog, 0)
	for _, l := range m.logs {
		if f.Matches(l) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *Memory) GetSettings(ctx context.Context) (settings.Settings, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return settings.Settings{}, false, nil
	}
	return *m.settings, true, nil
}

func (m *Memory) PutSettings(ctx context.Context, s settings.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
	return nil
}

func (m *Memory) InsertRule(ctx context.Context, r rules.Rule) error {
	return m.rules.InsertRule(ctx, r)
}

func (m *Memory) ListRules(ctx context.Context) ([]rules.Rule, error) { return m.rules.ListRules(ctx) }

func (m *Memory) DeleteRule(ctx context.Context, id string) error { return m.rules.DeleteRule(ctx, id) }

func (m *Memory) DeletePendingRules(ctx context.Context) (int, error) {
	return m.rules.DeletePendingRules(ctx)
}

func (m *Memory) Append(ctx context.Context, e audit.Event) error { return m.audit.Append(ctx, e) }

func (m *Memory) ListEvents(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	return m.audit.ListEvents(ctx, f)
}

// AuditEvents returns appended audit events in order.
func (m *Memory) AuditEvents() []audit.Event { return m.audit.Events() }
