package cadence

import (
	"sync"
	"time"

	"collections-engine/pkg/utils"
)

const DefaultCooldown = 7 * 24 * time.Hour

// Key identifies an (account, phone) pair.
type Key struct {
	AccountID string
	Phone     string
}

func (k Key) String() string { return k.AccountID + "|" + k.Phone }

// State is a copy of the tracked instants for one pair.
type State struct {
	LastCalled    time.Time
	LastEngagedAt time.Time
}

type entry struct {
	lastCalled    time.Time
	lastEngagedAt time.Time
}

// Tracker holds per-pair cadence state. Writes take the pair's stripe
// exclusively; reads share it. All updates are max-merges, so replays are no-ops.
type Tracker struct {
	cooldown time.Duration
	locks    *utils.KeyedRWMutex
	entries  sync.Map // Key -> *entry
}

func NewTracker(cooldown time.Duration) *Tracker {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Tracker{cooldown: cooldown, locks: utils.NewKeyedRWMutex(0)}
}

func (t *Tracker) Cooldown() time.Duration { return t.cooldown }

func (t *Tracker) entry(k Key) *entry {
	if v, ok := t.entries.Load(k); ok {
		return v.(*entry)
	}
	v, _ := t.entries.LoadOrStore(k, &entry{})
	return v.(*entry)
}

// Observe merges store-reported instants, e.g. phone.last_called after a restart.
func (t *Tracker) Observe(k Key, lastCalled, lastEngagedAt *time.Time) {
	if lastCalled == nil && lastEngagedAt == nil {
		return
	}
	e := t.entry(k)
	unlock := t.locks.Lock(k.String())
	defer unlock()
	if lastCalled != nil && lastCalled.After(e.lastCalled) {
		e.lastCalled = *lastCalled
	}
	if lastEngagedAt != nil && lastEngagedAt.After(e.lastEngagedAt) {
		e.lastEngagedAt = *lastEngagedAt
	}
}

// RecordCall marks a call at the given instant.
func (t *Tracker) RecordCall(k Key, at time.Time) {
	e := t.entry(k)
	unlock := t.locks.Lock(k.String())
	defer unlock()
	if at.After(e.lastCalled) {
		e.lastCalled = at
	}
}

// RecordEngagement marks debtor engagement at the given instant and reports
// whether the cooldown anchor moved.
func (t *Tracker) RecordEngagement(k Key, at time.Time) bool {
	e := t.entry(k)
	unlock := t.locks.Lock(k.String())
	defer unlock()
	if !at.After(e.lastEngagedAt) {
		return false
	}
	e.lastEngagedAt = at
	return true
}

func (t *Tracker) Get(k Key) State {
	v, ok := t.entries.Load(k)
	if !ok {
		return State{}
	}
	e := v.(*entry)
	unlock := t.locks.RLock(k.String())
	defer unlock()
	return State{LastCalled: e.lastCalled, LastEngagedAt: e.lastEngagedAt}
}

// CalledToday compares local calendar dates in loc.
func (t *Tracker) CalledToday(k Key, now time.Time, loc *time.Location) bool {
	s := t.Get(k)
	if s.LastCalled.IsZero() {
		return false
	}
	return SameLocalDate(s.LastCalled, now, loc)
}

// InCooldown is true while now - lastEngagement < cooldown.
func (t *Tracker) InCooldown(k Key, now time.Time) bool {
	s := t.Get(k)
	if s.LastEngagedAt.IsZero() {
		return false
	}
	return now.Sub(s.LastEngagedAt) < t.cooldown
}

// CooldownUntil returns when the pair becomes callable again, or zero.
func (t *Tracker) CooldownUntil(k Key) time.Time {
	s := t.Get(k)
	if s.LastEngagedAt.IsZero() {
		return time.Time{}
	}
	return s.LastEngagedAt.Add(t.cooldown)
}

func SameLocalDate(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
