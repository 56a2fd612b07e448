package calendar

import (
	"testing"
	"time"
)

func mustCalendar(t *testing.T) *Calendar {
	t.Helper()
	c, err := New("America/New_York", DefaultHolidays)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func TestTimezoneFor(t *testing.T) {
	c := mustCalendar(t)
	cases := map[string]string{
		"212": "America/New_York",
		"213": "America/Los_Angeles",
		"312": "America/Chicago",
		"602": "America/Phoenix",
		"808": "Pacific/Honolulu",
		"999": "America/New_York",
		"":    "America/New_York",
	}
	for code, want := range cases {
		if got := c.TimezoneFor(code).String(); got != want {
			t.Fatalf("TimezoneFor(%q)=%s, expected %s", code, got, want)
		}
	}
}

func TestIsHoliday_MissingYearIsNotHoliday(t *testing.T) {
	c := mustCalendar(t)
	if c.IsHoliday(time.Date(2100, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected missing year to report no holiday")
	}
	if !c.IsHoliday(time.Date(2025, 12, 25, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected christmas to be a holiday")
	}
}

func TestNew_RejectsBadInput(t *testing.T) {
	if _, err := New("Mars/Olympus", nil); err == nil {
		t.Fatalf("expected error for unknown zone")
	}
	if _, err := New("UTC", []Holiday{{Date: "12/25/2025"}}); err == nil {
		t.Fatalf("expected error for bad date")
	}
}

func TestWindow_BoundariesFlipExactly(t *testing.T) {
	c := mustCalendar(t)
	w := NewWindow(c, 8*time.Hour, 21*time.Hour)
	ny := c.TimezoneFor("212")

	cases := []struct {
		h, m int
		want bool
	}{
		{7, 59, false},
		{8, 0, true},
		{20, 59, true},
		{21, 0, false},
	}
	for _, tc := range cases {
		now := time.Date(2025, 3, 12, tc.h, tc.m, 0, 0, ny)
		if got := w.Allows("212", now); got != tc.want {
			t.Fatalf("%02d:%02d allows=%v, expected %v", tc.h, tc.m, got, tc.want)
		}
	}
}

func TestWindow_UsesPhoneLocalTime(t *testing.T) {
	c := mustCalendar(t)
	w := NewWindow(c, 8*time.Hour, 21*time.Hour)
	// 12:00 UTC is 08:00 in New York (EDT) but 05:00 in Los Angeles.
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	if !w.Allows("212", now) {
		t.Fatalf("expected new york open")
	}
	if got := w.Check("213", now); got != OutsideHours {
		t.Fatalf("expected los angeles outside hours, got %v", got)
	}
}

func TestWindow_HolidayJudgedOnLocalDate(t *testing.T) {
	c := mustCalendar(t)
	w := NewWindow(c, 8*time.Hour, 21*time.Hour)

	// 2025-11-27 04:00 UTC is still 2025-11-26 20:00 in Los Angeles.
	now := time.Date(2025, 11, 27, 4, 0, 0, 0, time.UTC)
	if got := w.Check("213", now); got != Open {
		t.Fatalf("expected open on the local day before thanksgiving, got %v", got)
	}

	la := c.TimezoneFor("213")
	thanksgiving := time.Date(2025, 11, 27, 12, 0, 0, 0, la)
	if got := w.Check("213", thanksgiving); got != ClosedHoliday {
		t.Fatalf("expected holiday, got %v", got)
	}
}

func TestWindow_BoundsOnDSTDay(t *testing.T) {
	c := mustCalendar(t)
	w := NewWindow(c, 8*time.Hour, 21*time.Hour)
	ny := c.TimezoneFor("212")
	now := time.Date(2025, 3, 9, 12, 0, 0, 0, ny)
	start, end := w.Bounds("212", now)
	if start.Hour() != 8 || end.Hour() != 21 {
		t.Fatalf("expected 08:00-21:00 local, got %v-%v", start, end)
	}
}

func TestWithHolidays_ReplacesSet(t *testing.T) {
	c := mustCalendar(t)
	c2, err := c.WithHolidays([]Holiday{{Date: "2025-07-04", Name: "Independence Day"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c2.IsHoliday(time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected old holidays gone")
	}
	if !c2.IsHoliday(time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected new holiday")
	}
	if len(c.Holidays()) != len(DefaultHolidays) {
		t.Fatalf("expected original calendar untouched")
	}
}

func TestHolidaysFor_DerivesFloatingDates(t *testing.T) {
	cases := map[int][]string{
		2024: {"2024-01-01", "2024-05-27", "2024-09-02", "2024-11-28", "2024-12-24", "2024-12-25"},
		2026: {"2026-01-01", "2026-05-25", "2026-09-07", "2026-11-26", "2026-12-24", "2026-12-25"},
		2027: {"2027-01-01", "2027-05-31", "2027-09-06", "2027-11-25", "2027-12-24", "2027-12-25"},
	}
	for year, want := range cases {
		got := HolidaysFor(year)
		if len(got) != len(want) {
			t.Fatalf("%d: expected %d holidays, got %d", year, len(want), len(got))
		}
		for i, h := range got {
			if h.Date != want[i] {
				t.Fatalf("%d: %s expected on %s, got %s", year, h.Name, want[i], h.Date)
			}
		}
	}
}

func TestDefaultHolidays_CoverNextYear(t *testing.T) {
	c := mustCalendar(t)
	next := time.Now().Year() + 1
	if !c.IsHoliday(time.Date(next, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected New Year's Day %d to be a holiday", next)
	}
	if !c.IsHoliday(time.Date(2027, 1, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected New Year's Day 2027 to be a holiday")
	}
}
