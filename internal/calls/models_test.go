package calls

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusQueued, StatusInitiated, true},
		{StatusInitiated, StatusCompleted, true},
		{StatusInitiated, StatusNoAnswer, true},
		{StatusInitiated, StatusVoicemail, true},
		{StatusInitiated, StatusFailed, true},
		{StatusInitiated, StatusInitiated, false},
		{StatusInitiated, StatusQueued, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusCompleted, false},
		{StatusVoicemail, StatusInitiated, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s,%s)=%v, expected %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCheckTransition_WrapsSentinel(t *testing.T) {
	err := CheckTransition(StatusCompleted, StatusFailed)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestPatchApply(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	l := CallLog{Status: StatusInitiated}
	st := StatusCompleted
	d := 42
	engaged := true
	Patch{Status: &st, DurationSeconds: &d, Engaged: &engaged, UpdatedAt: now}.Apply(&l)
	if l.Status != StatusCompleted || l.DurationSeconds == nil || *l.DurationSeconds != 42 || !l.Engaged {
		t.Fatalf("unexpected log after patch: %+v", l)
	}
	d = 7
	if *l.DurationSeconds != 42 {
		t.Fatalf("expected patch to copy duration")
	}
	if !l.UpdatedAt.Equal(now) {
		t.Fatalf("expected updated_at set")
	}
}

func TestFilter(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	l := CallLog{AccountID: "a1", Status: StatusFailed, CallTime: now}
	if !(Filter{}).Matches(l) {
		t.Fatalf("expected empty filter to match")
	}
	if (Filter{Status: StatusCompleted}).Matches(l) {
		t.Fatalf("expected status mismatch")
	}
	if (Filter{To: now}).Matches(l) {
		t.Fatalf("expected To to be exclusive")
	}
	if (Filter{}).EffectiveLimit() != DefaultListLimit || (Filter{Limit: 10000}).EffectiveLimit() != MaxListLimit {
		t.Fatalf("unexpected limits")
	}
}
