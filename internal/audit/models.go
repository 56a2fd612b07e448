package audit

import "time"

// Event is an immutable, append-only audit log record of an operator action.
//
// Invariants:
// - Events are never updated or deleted.
// - actor and ip capture are best-effort; audit failures never block the action.
//
// Storage (Postgres): table audit_events, INSERT only.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the operator subject from the access token.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress   string `json:"ip_address,omitempty" db:"ip_address"`

	// TargetID is the affected record, e.g. a rule id.
	TargetID string `json:"target_id,omitempty" db:"target_id"`

	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventEngineStarted   EventType = "engine_started"
	EventEngineStopped   EventType = "engine_stopped"
	EventTickTriggered   EventType = "tick_triggered"
	EventSettingsUpdated EventType = "settings_updated"
	EventRuleAdded       EventType = "rule_added"
	EventRuleDeleted     EventType = "rule_deleted"
	EventRulesCleared    EventType = "rules_cleared"
)

// Known reports whether t is one of the recorded event types.
func Known(t EventType) bool {
	switch t {
	case EventEngineStarted, EventEngineStopped, EventTickTriggered, EventSettingsUpdated,
		EventRuleAdded, EventRuleDeleted, EventRulesCleared:
		return true
	}
	return false
}

// Filter narrows ListEvents. Zero fields match everything.
type Filter struct {
	Type        EventType
	ActorUserID string
	Since       time.Time
	Limit       int
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
)

func (f Filter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		return MaxListLimit
	}
	return f.Limit
}

// Matches reports whether e passes the filter. Limit is not considered.
func (f Filter) Matches(e Event) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.ActorUserID != "" && e.ActorUserID != f.ActorUserID {
		return false
	}
	return f.Since.IsZero() || !e.CreatedAt.Before(f.Since)
}

// Actor identifies who did something.
type Actor struct {
	UserID string
	Role   string
	IP     string
}
