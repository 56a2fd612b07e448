package rules

import "time"

// Rule is a free-text suggestion for how the campaign should call. Rules are
// stored and listed only; nothing evaluates them.
type Rule struct {
	ID            string    `json:"id" db:"id"`
	RuleText      string    `json:"rule_text" db:"rule_text"`
	IsImplemented bool      `json:"is_implemented" db:"is_implemented"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
