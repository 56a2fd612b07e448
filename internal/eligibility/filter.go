package eligibility

import (
	"time"

	"collections-engine/internal/accounts"
	"collections-engine/internal/cadence"
	"collections-engine/internal/calendar"
	"collections-engine/internal/telephony"
)

type Reason string

const (
	ReasonNone           Reason = ""
	ReasonStatusExcluded Reason = "status_excluded"
	ReasonBadNumber      Reason = "bad_number"
	ReasonOutsideWindow  Reason = "outside_window"
	ReasonHoliday        Reason = "holiday"
	ReasonCalledToday    Reason = "called_today"
	ReasonCooldown       Reason = "cooldown"

	// ReasonDuplicateNumber is set by the planner, not by Evaluate: a second
	// row of one account that normalizes to an already planned number.
	ReasonDuplicateNumber Reason = "duplicate_number"
)

// Cadence is the read side of cadence.Tracker.
type Cadence interface {
	CalledToday(k cadence.Key, now time.Time, loc *time.Location) bool
	InCooldown(k cadence.Key, now time.Time) bool
}

// Decision is the outcome of evaluating one (account, phone) pair.
type Decision struct {
	Eligible bool
	Reason   Reason

	// E164 is the normalized dial string, also used as the cadence key phone.
	E164     string
	AreaCode string
	Location *time.Location
}

// Filter has no state of its own. Given the same inputs and cadence snapshot it
// returns the same Decision.
type Filter struct {
	Window  calendar.Window
	Cadence Cadence
}

func New(w calendar.Window, c Cadence) Filter {
	return Filter{Window: w, Cadence: c}
}

// KeyFor is the cadence key for a phone of an account.
func KeyFor(accountID string, p accounts.PhoneNumber) cadence.Key {
	return cadence.Key{AccountID: accountID, Phone: telephony.NormalizeE164(p.Number)}
}

// Evaluate checks, in order: status, workability, window/holiday, once-per-day, cooldown.
func (f Filter) Evaluate(set accounts.WorkableSet, a accounts.Account, p accounts.PhoneNumber, now time.Time) Decision {
	d := Decision{E164: telephony.NormalizeE164(p.Number)}
	d.AreaCode = telephony.AreaCode(d.E164)
	d.Location = f.Window.Cal.TimezoneFor(d.AreaCode)

	if !set.Includes(a.Status) {
		d.Reason = ReasonStatusExcluded
		return d
	}
	if p.Workability == accounts.WorkabilityBad || !telephony.IsDialable(d.E164) {
		d.Reason = ReasonBadNumber
		return d
	}
	switch f.Window.Check(d.AreaCode, now) {
	case calendar.ClosedHoliday:
		d.Reason = ReasonHoliday
		return d
	case calendar.OutsideHours:
		d.Reason = ReasonOutsideWindow
		return d
	}

	k := cadence.Key{AccountID: a.ID, Phone: d.E164}
	if f.Cadence != nil {
		if f.Cadence.CalledToday(k, now, d.Location) {
			d.Reason = ReasonCalledToday
			return d
		}
		if f.Cadence.InCooldown(k, now) {
			d.Reason = ReasonCooldown
			return d
		}
	}

	d.Eligible = true
	return d
}

func (f Filter) Eligible(set accounts.WorkableSet, a accounts.Account, p accounts.PhoneNumber, now time.Time) bool {
	return f.Evaluate(set, a, p, now).Eligible
}
