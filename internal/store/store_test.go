package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"collections-engine/internal/accounts"
	"collections-engine/internal/audit"
	"collections-engine/internal/calls"
	"collections-engine/internal/dispatcher"
	"collections-engine/internal/reporting"
	"collections-engine/internal/rules"
	"collections-engine/internal/scheduler"
	"collections-engine/internal/settings"
)

var (
	_ scheduler.AccountSource = (*Postgres)(nil)
	_ dispatcher.Repository   = (*Postgres)(nil)
	_ settings.Repository     = (*Postgres)(nil)
	_ rules.Repository        = (*Postgres)(nil)
	_ audit.Repository        = (*Postgres)(nil)
	_ reporting.Repository    = (*Postgres)(nil)

	_ scheduler.AccountSource = (*Memory)(nil)
	_ dispatcher.Repository   = (*Memory)(nil)
	_ settings.Repository     = (*Memory)(nil)
	_ rules.Repository        = (*Memory)(nil)
	_ audit.Repository        = (*Memory)(nil)
	_ reporting.Repository    = (*Memory)(nil)
)

func TestMemory_InsertBumpsPhoneLastCalled(t *testing.T) {
	m := NewMemory()
	m.PutAccount(accounts.Account{ID: "a1", Status: accounts.StatusActive, Phones: []accounts.PhoneNumber{{ID: "p1", Number: "2125550100"}}})

	at := time.Unix(1700000000, 0).UTC()
	if err := m.InsertInitiated(context.Background(), calls.CallLog{ID: "l1", AccountID: "a1", PhoneID: "p1", Status: calls.StatusInitiated, CallTime: at}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	accts, _ := m.ListWorkableAccounts(context.Background(), []accounts.Status{accounts.StatusActive})
	if len(accts) != 1 || accts[0].Phones[0].LastCalled == nil || !accts[0].Phones[0].LastCalled.Equal(at) {
		t.Fatalf("expected last_called bumped, got %+v", accts)
	}
}

func TestMemory_TouchPhoneIsMaxMerge(t *testing.T) {
	m := NewMemory()
	m.PutAccount(accounts.Account{ID: "a1", Status: accounts.StatusNew, Phones: []accounts.PhoneNumber{{ID: "p1"}}})
	later := time.Unix(1700000000, 0).UTC()
	earlier := later.Add(-time.Hour)

	_ = m.TouchPhone(context.Background(), "p1", later, &later)
	_ = m.TouchPhone(context.Background(), "p1", earlier, &earlier)

	accts, _ := m.ListWorkableAccounts(context.Background(), []accounts.Status{accounts.StatusNew})
	p := accts[0].Phones[0]
	if !p.LastCalled.Equal(later) || !p.LastEngagedAt.Equal(later) {
		t.Fatalf("expected max-merge, got %+v", p)
	}
}

func TestMemory_ListWorkableFiltersStatus(t *testing.T) {
	m := NewMemory()
	m.PutAccount(accounts.Account{ID: "a1", Status: accounts.StatusActive})
	m.PutAccount(accounts.Account{ID: "a2", Status: accounts.StatusDeceased})

	accts, _ := m.ListWorkableAccounts(context.Background(), accounts.DefaultWorkableSet().Included())
	if len(accts) != 1 || accts[0].ID != "a1" {
		t.Fatalf("unexpected accounts %+v", accts)
	}
}

func TestMemory_TransitionIsCompareAndSet(t *testing.T) {
	m := NewMemory()
	_ = m.InsertInitiated(context.Background(), calls.CallLog{ID: "l1", Status: calls.StatusInitiated})

	done := calls.StatusCompleted
	l, ok, err := m.TransitionCallLog(context.Background(), "l1", calls.StatusInitiated, calls.Patch{Status: &done})
	if err != nil || !ok || l.Status != calls.StatusCompleted {
		t.Fatalf("expected applied transition, got %+v %v %v", l, ok, err)
	}
	failed := calls.StatusFailed
	l, ok, err = m.TransitionCallLog(context.Background(), "l1", calls.StatusInitiated, calls.Patch{Status: &failed})
	if err != nil || ok || l.Status != calls.StatusCompleted {
		t.Fatalf("expected no-op, got %+v %v %v", l, ok, err)
	}
}

func TestMemory_ListCallLogsNewestFirstWithLimit(t *testing.T) {
	m := NewMemory()
	base := time.Unix(1700000000, 0).UTC()
	for i := 0; i < 5; i++ {
		_ = m.InsertInitiated(context.Background(), calls.CallLog{
			ID: string(rune('a' + i)), AccountID: "a1", Status: calls.StatusInitiated, CallTime: base.Add(time.Duration(i) * time.Minute),
		})
	}
	out, _ := m.ListCallLogs(context.Background(), calls.Filter{AccountID: "a1", Limit: 2})
	if len(out) != 2 || out[0].ID != "e" || out[1].ID != "d" {
		t.Fatalf("unexpected list %+v", out)
	}
}

func TestSchemaEmbedded(t *testing.T) {
	for _, table := range []string{"call_logs", "phone_numbers", "integration_settings", "call_rules", "audit_events"} {
		if !strings.Contains(schemaSQL, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("schema missing %s", table)
		}
	}
}
