package scheduler

import (
	"sort"
	"time"

	"collections-engine/internal/cadence"
	"collections-engine/internal/eligibility"
)

// PlanStatus is where a planned call ended up in its tick.
type PlanStatus string

const (
	PlanPending    PlanStatus = "pending"
	PlanDispatched PlanStatus = "dispatched"
	PlanRejected   PlanStatus = "rejected"
	PlanUnknown    PlanStatus = "unknown"
	PlanSkipped    PlanStatus = "skipped"
)

// PlannedCall is one eligible (account, phone) pair. PlannedAt is for display
// and ordering only; dispatch happens in the tick that planned it.
type PlannedCall struct {
	AccountID     string `json:"account_id"`
	AccountNumber string `json:"account_number"`
	DebtorName    string `json:"debtor_name"`
	PhoneID       string `json:"phone_id"`
	Phone         string `json:"phone"`
	AreaCode      string `json:"area_code"`
	Timezone      string `json:"timezone"`

	PlannedAt time.Time `json:"planned_at"`
	LocalTime string    `json:"local_time"`

	Voice      string     `json:"voice,omitempty"`
	FromNumber string     `json:"from_number,omitempty"`
	Status     PlanStatus `json:"status"`
	CallLogID  string     `json:"call_log_id,omitempty"`
	Error      string     `json:"error,omitempty"`
}

func (c PlannedCall) key() string {
	return cadence.Key{AccountID: c.AccountID, Phone: c.Phone}.String()
}

// CooldownHold is a pair held back by the post-engagement cooldown.
type CooldownHold struct {
	AccountID string    `json:"account_id"`
	PhoneID   string    `json:"phone_id"`
	Phone     string    `json:"phone"`
	Until     time.Time `json:"until"`
}

// Schedule is the projection for one local day. Calls accumulate across
// the day's ticks; Considered, Excluded, Cooldowns and Truncated describe
// the latest tick only.
type Schedule struct {
	Day         string                     `json:"day"`
	GeneratedAt time.Time                  `json:"generated_at"`
	Considered  int                        `json:"considered"`
	Excluded    map[eligibility.Reason]int `json:"excluded"`
	Cooldowns   []CooldownHold             `json:"cooldowns,omitempty"`
	Calls       []PlannedCall              `json:"calls"`
	Truncated   bool                       `json:"truncated"`
}

func (s Schedule) clone() Schedule {
	out := s
	out.Calls = append([]PlannedCall(nil), s.Calls...)
	out.Cooldowns = append([]CooldownHold(nil), s.Cooldowns...)
	if s.Excluded != nil {
		out.Excluded = make(map[eligibility.Reason]int, len(s.Excluded))
		for k, v := range s.Excluded {
			out.Excluded[k] = v
		}
	}
	return out
}

// Counts tallies planned calls by status.
func (s Schedule) Counts() map[PlanStatus]int {
	m := map[PlanStatus]int{}
	for _, c := range s.Calls {
		m[c.Status]++
	}
	return m
}

// sortPlan orders by planned slot, then account and phone so equal slots are stable.
func sortPlan(calls []PlannedCall) {
	sort.SliceStable(calls, func(i, j int) bool {
		a, b := calls[i], calls[j]
		if !a.PlannedAt.Equal(b.PlannedAt) {
			return a.PlannedAt.Before(b.PlannedAt)
		}
		if a.AccountID != b.AccountID {
			return a.AccountID < b.AccountID
		}
		return a.Phone < b.Phone
	})
}
