package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"collections-engine/internal/cadence"
	"collections-engine/internal/calls"
	"collections-engine/internal/rotation"
	"collections-engine/internal/settings"
	"collections-engine/internal/telephony"
	"collections-engine/pkg/logger"
)

type fakeProvider struct {
	mu   sync.Mutex
	reqs []telephony.CallRequest
	err  error
	id   string
}

func (p *fakeProvider) Name() string                          { return "fake" }
func (p *fakeProvider) HealthCheck(ctx context.Context) error { return nil }
func (p *fakeProvider) PlaceCall(ctx context.Context, req telephony.CallRequest) (telephony.CallResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqs = append(p.reqs, req)
	if p.err != nil {
		return telephony.CallResult{}, p.err
	}
	id := p.id
	if id == "" {
		id = fmt.Sprintf("prov-%d", len(p.reqs))
	}
	return telephony.CallResult{ProviderCallID: id}, nil
}

var t0 = time.Unix(1700000000, 0).UTC()

func newTestDispatcher(repo *MemoryRepo, prov *fakeProvider, tr *cadence.Tracker, opts ...Option) *Dispatcher {
	seq := 0
	opts = append([]Option{
		WithClock(func() time.Time { return t0 }),
		WithIDs(func() string { seq++; return fmt.Sprintf("log-%d", seq) }),
	}, opts...)
	return New(repo, prov, tr, logger.Discard(), opts...)
}

func sampleRequest() Request {
	return Request{
		AccountID:  "a1",
		PhoneID:    "p1",
		E164:       "+12125550100",
		Assignment: rotation.Assignment{Voice: "nat", FromNumber: "+13125550100"},
		Settings:   settings.Settings{APIKey: "k", PathwayID: "pw", Model: "enhanced", MaxDurationSeconds: 300},
	}
}

func TestDispatch_AcceptedStaysInitiated(t *testing.T) {
	repo := NewMemoryRepo()
	prov := &fakeProvider{id: "c-1"}
	tr := cadence.NewTracker(0)
	d := newTestDispatcher(repo, prov, tr)

	cl, err := d.Dispatch(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cl.Status != calls.StatusInitiated || cl.ProviderCallID != "c-1" {
		t.Fatalf("unexpected log: %+v", cl)
	}
	stored, _ := repo.GetCallLog(context.Background(), cl.ID)
	if stored.ProviderCallID != "c-1" || stored.Status != calls.StatusInitiated {
		t.Fatalf("unexpected stored log: %+v", stored)
	}
	if !repo.Phone("p1").LastCalled.Equal(t0) {
		t.Fatalf("expected phone last_called set with the insert")
	}
	if !tr.Get(cadence.Key{AccountID: "a1", Phone: "+12125550100"}).LastCalled.Equal(t0) {
		t.Fatalf("expected cadence call recorded")
	}
	if prov.reqs[0].Metadata[telephony.MetadataCallLogID] != cl.ID {
		t.Fatalf("expected call log id sent as metadata")
	}
	if prov.reqs[0].Voice != "nat" || prov.reqs[0].PathwayID != "pw" {
		t.Fatalf("unexpected provider request: %+v", prov.reqs[0])
	}
}

func TestDispatch_RejectionMarksFailed(t *testing.T) {
	repo := NewMemoryRepo()
	prov := &fakeProvider{err: &telephony.ProviderError{StatusCode: 400, Message: "Invalid phone number"}}
	d := newTestDispatcher(repo, prov, cadence.NewTracker(0))

	cl, err := d.Dispatch(context.Background(), sampleRequest())
	if !telephony.IsRejection(err) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if cl.Status != calls.StatusFailed || cl.ErrorMessage != "Invalid phone number" {
		t.Fatalf("unexpected log: %+v", cl)
	}
	if len(prov.reqs) != 1 {
		t.Fatalf("expected no retry, got %d provider calls", len(prov.reqs))
	}
}

func TestDispatch_TransientAfterInsertLeavesInitiated(t *testing.T) {
	repo := NewMemoryRepo()
	prov := &fakeProvider{err: fmt.Errorf("%w: timeout", telephony.ErrUnavailable)}
	d := newTestDispatcher(repo, prov, cadence.NewTracker(0))

	cl, err := d.Dispatch(context.Background(), sampleRequest())
	if !errors.Is(err, telephony.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	logs := repo.Logs()
	if len(logs) != 1 || logs[0].Status != calls.StatusInitiated || cl.ID != logs[0].ID {
		t.Fatalf("expected one initiated log, got %+v", logs)
	}
}

func TestDispatch_InsertFailureWritesNothing(t *testing.T) {
	repo := NewMemoryRepo()
	repo.InsertErr = errors.New("db down")
	prov := &fakeProvider{}
	tr := cadence.NewTracker(0)
	d := newTestDispatcher(repo, prov, tr)

	_, err := d.Dispatch(context.Background(), sampleRequest())
	if !errors.Is(err, ErrSkipped) {
		t.Fatalf("expected ErrSkipped, got %v", err)
	}
	if len(prov.reqs) != 0 {
		t.Fatalf("provider must not be called without a call log")
	}
	if !tr.Get(cadence.Key{AccountID: "a1", Phone: "+12125550100"}).LastCalled.IsZero() {
		t.Fatalf("expected no cadence change")
	}
}

type fullGate struct{}

func (fullGate) Acquire(ctx context.Context) (bool, error) { return false, nil }
func (fullGate) Release(ctx context.Context)               {}

func TestDispatch_GateFullSkips(t *testing.T) {
	repo := NewMemoryRepo()
	prov := &fakeProvider{}
	d := newTestDispatcher(repo, prov, cadence.NewTracker(0), WithSlotGate(fullGate{}))
	if _, err := d.Dispatch(context.Background(), sampleRequest()); !errors.Is(err, ErrSkipped) {
		t.Fatalf("expected ErrSkipped, got %v", err)
	}
	if len(repo.Logs()) != 0 || len(prov.reqs) != 0 {
		t.Fatalf("expected nothing written or sent")
	}
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []calls.CallLog
}

func (n *recordingNotifier) OutcomeApplied(l calls.CallLog) {
	n.mu.Lock()
	n.got = append(n.got, l)
	n.mu.Unlock()
}

func TestApplyOutcome_TerminalOnceAndIdempotent(t *testing.T) {
	repo := NewMemoryRepo()
	tr := cadence.NewTracker(0)
	n := &recordingNotifier{}
	d := newTestDispatcher(repo, &fakeProvider{id: "c-1"}, tr, WithNotifier(n))
	cl, _ := d.Dispatch(context.Background(), sampleRequest())

	engagedAt := t0.Add(3 * time.Minute)
	dur := 95
	o := calls.Outcome{ProviderCallID: "c-1", Status: calls.StatusCompleted, Engaged: true, DurationSeconds: &dur, At: engagedAt}

	got, err := d.ApplyOutcome(context.Background(), o)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != cl.ID || got.Status != calls.StatusCompleted || !got.Engaged || *got.DurationSeconds != 95 {
		t.Fatalf("unexpected log: %+v", got)
	}

	// Same outcome again: no-op.
	if _, err := d.ApplyOutcome(context.Background(), o); err != nil {
		t.Fatalf("expected replay to be a no-op, got %v", err)
	}
	if len(n.got) != 1 {
		t.Fatalf("expected one notification, got %d", len(n.got))
	}

	// Different terminal: rejected.
	o2 := o
	o2.Status = calls.StatusFailed
	if _, err := d.ApplyOutcome(context.Background(), o2); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}

	key := cadence.Key{AccountID: "a1", Phone: "+12125550100"}
	if !tr.Get(key).LastEngagedAt.Equal(engagedAt) {
		t.Fatalf("expected engagement at outcome time")
	}
	pt := repo.Phone("p1")
	if pt.LastEngagedAt == nil || !pt.LastEngagedAt.Equal(engagedAt) {
		t.Fatalf("expected phone last_engaged_at persisted")
	}
	if !tr.InCooldown(key, engagedAt.Add(6*24*time.Hour)) {
		t.Fatalf("expected cooldown active")
	}
}

func TestApplyOutcome_FindsByCallLogID(t *testing.T) {
	repo := NewMemoryRepo()
	d := newTestDispatcher(repo, &fakeProvider{id: "c-9"}, cadence.NewTracker(0))
	cl, _ := d.Dispatch(context.Background(), sampleRequest())

	got, err := d.ApplyOutcome(context.Background(), calls.Outcome{CallLogID: cl.ID, Status: calls.StatusVoicemail})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != calls.StatusVoicemail {
		t.Fatalf("unexpected status %s", got.Status)
	}
}

func TestApplyOutcome_UnknownAndNonTerminal(t *testing.T) {
	d := newTestDispatcher(NewMemoryRepo(), &fakeProvider{}, cadence.NewTracker(0))
	if _, err := d.ApplyOutcome(context.Background(), calls.Outcome{ProviderCallID: "nope", Status: calls.StatusCompleted}); !errors.Is(err, calls.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := d.ApplyOutcome(context.Background(), calls.Outcome{ProviderCallID: "x", Status: calls.StatusInitiated}); !errors.Is(err, calls.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestApplyOutcome_ConcurrentDeliveriesApplyOnce(t *testing.T) {
	repo := NewMemoryRepo()
	n := &recordingNotifier{}
	d := newTestDispatcher(repo, &fakeProvider{id: "c-1"}, cadence.NewTracker(0), WithNotifier(n))
	_, _ = d.Dispatch(context.Background(), sampleRequest())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.ApplyOutcome(context.Background(), calls.Outcome{ProviderCallID: "c-1", Status: calls.StatusNoAnswer})
		}()
	}
	wg.Wait()
	if len(n.got) != 1 {
		t.Fatalf("expected exactly one applied transition, got %d", len(n.got))
	}
}
