package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"collections-engine/pkg/logger"
)

func TestService_AppendRequiresType(t *testing.T) {
	svc := NewService(NewMemoryRepo(), logger.Discard())
	if err := svc.Append(context.Background(), Event{}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestService_RecordCapturesActor(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, logger.Discard())

	svc.Record(context.Background(), Actor{UserID: "op", Role: "admin", IP: "1.2.3.4"}, EventRuleDeleted, "r1", "rule deleted")

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	e := evs[0]
	if e.IPAddress != "1.2.3.4" || e.ActorRole != "admin" || e.TargetID != "r1" {
		t.Fatalf("unexpected event %+v", e)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp filled")
	}
}

func TestService_RecordSwallowsRepoErrors(t *testing.T) {
	repo := NewMemoryRepo()
	repo.Err = errors.New("db down")
	svc := NewService(repo, logger.Discard())

	svc.Record(context.Background(), Actor{UserID: "op"}, EventEngineStarted, "", "")
	if len(repo.Events()) != 0 {
		t.Fatalf("expected nothing stored")
	}
}

func TestService_ListNewestFirstWithFilters(t *testing.T) {
	svc := NewService(NewMemoryRepo(), logger.Discard())
	base := time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC)
	seed := []Event{
		{Type: EventEngineStarted, ActorUserID: "ana", CreatedAt: base},
		{Type: EventRuleAdded, ActorUserID: "ana", TargetID: "r1", CreatedAt: base.Add(time.Minute)},
		{Type: EventRuleAdded, ActorUserID: "ben", TargetID: "r2", CreatedAt: base.Add(2 * time.Minute)},
		{Type: EventEngineStopped, ActorUserID: "ben", CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, e := range seed {
		if err := svc.Append(context.Background(), e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	all, err := svc.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 4 || all[0].Type != EventEngineStopped || all[3].Type != EventEngineStarted {
		t.Fatalf("expected newest first, got %+v", all)
	}

	rules, _ := svc.List(context.Background(), Filter{Type: EventRuleAdded, Limit: 1})
	if len(rules) != 1 || rules[0].TargetID != "r2" {
		t.Fatalf("expected latest rule_added only, got %+v", rules)
	}

	ana, _ := svc.List(context.Background(), Filter{ActorUserID: "ana", Since: base.Add(30 * time.Second)})
	if len(ana) != 1 || ana[0].TargetID != "r1" {
		t.Fatalf("unexpected actor/since filter result %+v", ana)
	}

	if _, err := svc.List(context.Background(), Filter{Type: "nope"}); !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}
