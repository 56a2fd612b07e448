package accounts

import (
	"strings"
	"time"
)

// Account is a debt record as read from the store. The engine never writes it.
type Account struct {
	ID            string `json:"id" db:"id"`
	AccountNumber string `json:"account_number" db:"account_number"`
	DebtorName    string `json:"debtor_name" db:"debtor_name"`
	Status        Status `json:"status" db:"status"`

	Phones []PhoneNumber `json:"phones"`
}

type Status string

const (
	StatusNew        Status = "new"
	StatusActive     Status = "active"
	StatusNoContact  Status = "no_contact"
	StatusSkip       Status = "skip"
	StatusBankruptcy Status = "bankruptcy"
	StatusDeceased   Status = "deceased"
	StatusPaying     Status = "paying"
	StatusPaid       Status = "paid"
	StatusLawyer     Status = "lawyer"
	StatusDispute    Status = "dispute"
)

// AllStatuses is the closed status set in display order.
var AllStatuses = []Status{
	StatusNew,
	StatusActive,
	StatusNoContact,
	StatusSkip,
	StatusBankruptcy,
	StatusDeceased,
	StatusPaying,
	StatusPaid,
	StatusLawyer,
	StatusDispute,
}

func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

func ParseStatus(v string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(v)))
	return s, s.Valid()
}

type Workability string

const (
	WorkabilityGood    Workability = "good"
	WorkabilityBad     Workability = "bad"
	WorkabilityUnknown Workability = "unknown"
)

// PhoneNumber belongs to exactly one Account.
type PhoneNumber struct {
	ID          string      `json:"id" db:"id"`
	AccountID   string      `json:"account_id" db:"account_id"`
	Number      string      `json:"number" db:"number"`
	Workability Workability `json:"workability" db:"workability"`

	LastCalled    *time.Time `json:"last_called,omitempty" db:"last_called"`
	LastEngagedAt *time.Time `json:"last_engaged_at,omitempty" db:"last_engaged_at"`
}

// WorkableSet maps a status to "included in campaign". Missing statuses are excluded.
type WorkableSet map[Status]bool

// DefaultWorkableSet returns the campaign defaults: new, active, no_contact and skip.
func DefaultWorkableSet() WorkableSet {
	return WorkableSet{
		StatusNew:        true,
		StatusActive:     true,
		StatusNoContact:  true,
		StatusSkip:       true,
		StatusBankruptcy: false,
		StatusDeceased:   false,
		StatusPaying:     false,
		StatusPaid:       false,
		StatusLawyer:     false,
		StatusDispute:    false,
	}
}

func (w WorkableSet) Includes(s Status) bool {
	return w[s]
}

// Included returns the included statuses in AllStatuses order.
func (w WorkableSet) Included() []Status {
	out := make([]Status, 0, len(w))
	for _, s := range AllStatuses {
		if w[s] {
			out = append(out, s)
		}
	}
	return out
}

func (w WorkableSet) Clone() WorkableSet {
	out := make(WorkableSet, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}
