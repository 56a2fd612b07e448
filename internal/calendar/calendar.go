package calendar

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// Calendar maps area codes to zones and local dates to no-call holidays.
// It is immutable after construction and safe for concurrent use.
type Calendar struct {
	defaultLoc *time.Location
	zones      map[string]*time.Location
	holidays   HolidaySet
}

// New builds a Calendar. defaultTZ is used for unmapped area codes.
func New(defaultTZ string, holidays []Holiday) (*Calendar, error) {
	def, err := time.LoadLocation(defaultTZ)
	if err != nil {
		return nil, fmt.Errorf("calendar: default zone %q: %w", defaultTZ, err)
	}
	hs, err := NewHolidaySet(holidays)
	if err != nil {
		return nil, err
	}

	zones := map[string]*time.Location{}
	for name, codes := range areaCodesByZone {
		loc, err := time.LoadLocation(name)
		if err != nil {
			return nil, fmt.Errorf("calendar: zone %q: %w", name, err)
		}
		for _, code := range codes {
			zones[code] = loc
		}
	}
	return &Calendar{defaultLoc: def, zones: zones, holidays: hs}, nil
}

// WithHolidays returns a copy using a different holiday list.
func (c *Calendar) WithHolidays(holidays []Holiday) (*Calendar, error) {
	hs, err := NewHolidaySet(holidays)
	if err != nil {
		return nil, err
	}
	return &Calendar{defaultLoc: c.defaultLoc, zones: c.zones, holidays: hs}, nil
}

// TimezoneFor never fails; unknown or malformed codes get the default zone.
func (c *Calendar) TimezoneFor(areaCode string) *time.Location {
	if loc, ok := c.zones[areaCode]; ok {
		return loc
	}
	return c.defaultLoc
}

func (c *Calendar) DefaultLocation() *time.Location { return c.defaultLoc }

// IsHoliday checks the calendar date of localDate as given. Convert to the
// phone's zone first.
func (c *Calendar) IsHoliday(localDate time.Time) bool {
	return c.holidays.Contains(localDate)
}

func (c *Calendar) Holidays() []Holiday { return c.holidays.List() }
