package observer

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Event is a small in-memory signal for UIs and other listeners.
//
// Contract:
//   - Publish never blocks.
//   - Each subscriber has its own buffered channel; a slow one drops its own
//     events and never delays the others.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

const (
	TypeScheduleUpdated = "schedule.updated"
	TypeEngineStarted   = "engine.started"
	TypeEngineStopped   = "engine.stopped"
	TypeCallOutcome     = "call.outcome"
)

const defaultBuffer = 16

type subscriber struct {
	ch      chan Event
	dropped atomic.Uint64
}

// Bus is a fan-out of Events to subscribers. It owns no goroutines except
// those started by SubscribeFunc.
type Bus struct {
	log *slog.Logger
	now func() time.Time

	mu   sync.RWMutex
	subs map[uint64]*subscriber
	seq  atomic.Uint64
}

func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{log: log, now: time.Now, subs: map[uint64]*subscriber{}}
}

// Publish delivers e to every current subscriber that has buffer room.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = b.now()
	}
	// Sends are non-blocking, so holding the read lock is cheap and keeps
	// unsubscribe from closing a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
		}
	}
}

// Subscribe returns a buffered channel and an idempotent unsubscribe that
// closes it. No events are delivered after unsubscribe returns.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	s := &subscriber{ch: make(chan Event, buffer)}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(s.ch)
			if n := s.dropped.Load(); n > 0 {
				b.log.Debug("observer unsubscribed with drops", "dropped", n)
			}
		})
	}
	return s.ch, unsub
}

// SubscribeFunc runs fn for each event on its own goroutine. A panic in fn is
// logged and the next event is still delivered. fn is not called again once
// unsubscribe has returned.
func (b *Bus) SubscribeFunc(buffer int, fn func(Event)) func() {
	ch, unsub := b.Subscribe(buffer)
	var stopped atomic.Bool
	go func() {
		for e := range ch {
			if stopped.Load() {
				continue
			}
			b.deliver(fn, e)
		}
	}()
	return func() {
		stopped.Store(true)
		unsub()
	}
}

func (b *Bus) deliver(fn func(Event), e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("observer subscriber panicked", "type", e.Type, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn(e)
}

// Len reports the current subscriber count.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
