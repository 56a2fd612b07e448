package calendar

import (
	"fmt"
	"sort"
	"time"
)

const dateLayout = "2006-01-02"

// Holiday is one no-call date.
type Holiday struct {
	Date string `json:"date" yaml:"date"`
	Name string `json:"name" yaml:"name"`
}

// DefaultHolidays runs from 2024 through ten years past the current year.
var DefaultHolidays = HolidaysBetween(2024, time.Now().Year()+10)

// HolidaysFor derives the no-call dates of one year: New Year's Day,
// Memorial Day, Labor Day, Thanksgiving, Christmas Eve and Christmas Day.
// Dates are not shifted to an observed weekday.
func HolidaysFor(year int) []Holiday {
	day := func(m time.Month, d int) string {
		return time.Date(year, m, d, 0, 0, 0, 0, time.UTC).Format(dateLayout)
	}
	return []Holiday{
		{Date: day(time.January, 1), Name: "New Year's Day"},
		{Date: day(time.May, lastWeekday(year, time.May, time.Monday)), Name: "Memorial Day"},
		{Date: day(time.September, nthWeekday(year, time.September, time.Monday, 1)), Name: "Labor Day"},
		{Date: day(time.November, nthWeekday(year, time.November, time.Thursday, 4)), Name: "Thanksgiving"},
		{Date: day(time.December, 24), Name: "Christmas Eve"},
		{Date: day(time.December, 25), Name: "Christmas Day"},
	}
}

// HolidaysBetween concatenates HolidaysFor for each year in [from, to].
func HolidaysBetween(from, to int) []Holiday {
	var out []Holiday
	for y := from; y <= to; y++ {
		out = append(out, HolidaysFor(y)...)
	}
	return out
}

// nthWeekday is the day of month of the nth wd in month m.
func nthWeekday(year int, m time.Month, wd time.Weekday, n int) int {
	first := time.Date(year, m, 1, 0, 0, 0, 0, time.UTC).Weekday()
	return 1 + int(wd-first+7)%7 + 7*(n-1)
}

// lastWeekday is the day of month of the last wd in month m.
func lastWeekday(year int, m time.Month, wd time.Weekday) int {
	last := time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC)
	return last.Day() - int(last.Weekday()-wd+7)%7
}

// HolidaySet is keyed by year so a year with no entries is simply absent.
type HolidaySet map[int]map[string]string

func NewHolidaySet(hs []Holiday) (HolidaySet, error) {
	out := HolidaySet{}
	for _, h := range hs {
		d, err := time.Parse(dateLayout, h.Date)
		if err != nil {
			return nil, fmt.Errorf("calendar: bad holiday date %q: %w", h.Date, err)
		}
		year := out[d.Year()]
		if year == nil {
			year = map[string]string{}
			out[d.Year()] = year
		}
		year[h.Date] = h.Name
	}
	return out, nil
}

// Contains reports whether the calendar date of t (in t's own location) is listed.
func (s HolidaySet) Contains(t time.Time) bool {
	year, ok := s[t.Year()]
	if !ok {
		return false
	}
	_, ok = year[t.Format(dateLayout)]
	return ok
}

// Years returns the covered years, ascending.
func (s HolidaySet) Years() []int {
	out := make([]int, 0, len(s))
	for y := range s {
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}

// List returns every holiday sorted by date.
func (s HolidaySet) List() []Holiday {
	var out []Holiday
	for _, y := range s.Years() {
		for d, name := range s[y] {
			out = append(out, Holiday{Date: d, Name: name})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
