package observer

import (
	"sync"
	"testing"
	"time"

	"collections-engine/internal/calls"
	"collections-engine/pkg/logger"
)

func TestBus_FanOut(t *testing.T) {
	b := New(logger.Discard())
	a, unsubA := b.Subscribe(4)
	c, unsubC := b.Subscribe(4)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: TypeScheduleUpdated})
	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != TypeScheduleUpdated || e.Time.IsZero() {
				t.Fatalf("unexpected event: %+v", e)
			}
		case <-time.After(time.Second):
			t.Fatalf("expected delivery")
		}
	}
}

func TestBus_PublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	b := New(logger.Discard())
	_, unsubSlow := b.Subscribe(1)
	defer unsubSlow()
	fast, unsubFast := b.Subscribe(100)
	defer unsubFast()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			b.Publish(Event{Type: TypeScheduleUpdated})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked")
	}
	if len(fast) != 50 {
		t.Fatalf("expected fast subscriber to get all 50, got %d", len(fast))
	}
}

func TestBus_UnsubscribeIsIdempotentAndCloses(t *testing.T) {
	b := New(logger.Discard())
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	if b.Len() != 0 {
		t.Fatalf("expected no subscribers")
	}
	b.Publish(Event{Type: TypeEngineStopped})
}

func TestBus_SubscribeFuncIsolatesPanics(t *testing.T) {
	b := New(logger.Discard())

	var mu sync.Mutex
	got := 0
	var wg sync.WaitGroup
	wg.Add(2)

	unsubBad := b.SubscribeFunc(4, func(e Event) {
		defer wg.Done()
		panic("boom")
	})
	defer unsubBad()
	unsubGood := b.SubscribeFunc(4, func(e Event) {
		mu.Lock()
		got++
		mu.Unlock()
		wg.Done()
	})
	defer unsubGood()

	b.Publish(Event{Type: TypeScheduleUpdated})

	waitCh := make(chan struct{})
	go func() { wg.Wait(); close(waitCh) }()
	select {
	case <-waitCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected both subscribers to run")
	}
	mu.Lock()
	defer mu.Unlock()
	if got != 1 {
		t.Fatalf("expected good subscriber called once, got %d", got)
	}
}

func TestBus_OutcomeApplied(t *testing.T) {
	b := New(logger.Discard())
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.OutcomeApplied(calls.CallLog{ID: "log-1", Status: calls.StatusCompleted})
	select {
	case e := <-ch:
		l, ok := e.Data.(calls.CallLog)
		if e.Type != TypeCallOutcome || !ok || l.ID != "log-1" {
			t.Fatalf("unexpected event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected delivery")
	}
}
