package calls

import (
	"errors"
	"fmt"
	"time"
)

// CallLog is the durable record of one outbound call attempt.
//
// Rows are created already in StatusInitiated; StatusQueued only exists in memory
// while a tick is planning. The engine never deletes a CallLog.
type CallLog struct {
	ID          string `json:"id" db:"id"`
	AccountID   string `json:"account_id" db:"account_id"`
	PhoneID     string `json:"phone_id" db:"phone_id"`
	PhoneNumber string `json:"phone_number" db:"phone_number"`

	Status Status `json:"status" db:"status"`

	DurationSeconds *int   `json:"duration_seconds,omitempty" db:"duration_seconds"`
	RecordingURL    string `json:"recording_url,omitempty" db:"recording_url"`
	Transcript      string `json:"transcript,omitempty" db:"transcript"`

	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`
	VoiceUsed      string `json:"voice_used" db:"voice_used"`
	FromNumber     string `json:"from_number,omitempty" db:"from_number"`

	Engaged      bool   `json:"engaged" db:"engaged"`
	ErrorMessage string `json:"error_message,omitempty" db:"error_message"`

	CallTime  time.Time `json:"call_time" db:"call_time"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusQueued    Status = "queued"
	StatusInitiated Status = "initiated"
	StatusCompleted Status = "completed"
	StatusNoAnswer  Status = "no_answer"
	StatusVoicemail Status = "voicemail"
	StatusFailed    Status = "failed"
)

var (
	ErrInvalidTransition = errors.New("calls: invalid status transition")
	ErrAlreadyTerminal   = errors.New("calls: call log already has a different terminal status")
	ErrNotFound          = errors.New("calls: call log not found")
)

func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusInitiated, StatusCompleted, StatusNoAnswer, StatusVoicemail, StatusFailed:
		return true
	default:
		return false
	}
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusNoAnswer, StatusVoicemail, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether a CallLog may move from one status to another.
// Terminal states are final; a new attempt is a new row.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusQueued:
		return to == StatusInitiated || to == StatusFailed
	case StatusInitiated:
		return to.IsTerminal()
	default:
		return false
	}
}

// CheckTransition is CanTransition as an error.
func CheckTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Patch is a partial CallLog update. Nil fields are left unchanged.
type Patch struct {
	Status          *Status
	ProviderCallID  *string
	DurationSeconds *int
	RecordingURL    *string
	Transcript      *string
	Engaged         *bool
	ErrorMessage    *string
	UpdatedAt       time.Time
}

// Apply copies the set fields of p onto l.
func (p Patch) Apply(l *CallLog) {
	if p.Status != nil {
		l.Status = *p.Status
	}
	if p.ProviderCallID != nil {
		l.ProviderCallID = *p.ProviderCallID
	}
	if p.DurationSeconds != nil {
		d := *p.DurationSeconds
		l.DurationSeconds = &d
	}
	if p.RecordingURL != nil {
		l.RecordingURL = *p.RecordingURL
	}
	if p.Transcript != nil {
		l.Transcript = *p.Transcript
	}
	if p.Engaged != nil {
		l.Engaged = *p.Engaged
	}
	if p.ErrorMessage != nil {
		l.ErrorMessage = *p.ErrorMessage
	}
	if !p.UpdatedAt.IsZero() {
		l.UpdatedAt = p.UpdatedAt
	}
}

// Outcome is the final result of a call as reported by the provider.
type Outcome struct {
	// CallLogID is preferred when the provider echoes it back; otherwise the
	// log is found by ProviderCallID.
	CallLogID       string
	ProviderCallID  string
	Status          Status
	DurationSeconds *int
	RecordingURL    string
	Transcript      string
	Engaged         bool
	ErrorMessage    string

	// At is when the outcome happened at the provider. Zero means "now".
	At time.Time
}

// Filter narrows ListCallLogs. Zero values mean "any".
type Filter struct {
	Status    Status
	AccountID string
	From      time.Time
	To        time.Time
	Limit     int
}

const (
	DefaultListLimit = 50
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

// Matches reports whether l passes the filter. Limit is not considered.
func (f Filter) Matches(l CallLog) bool {
	if f.Status != "" && l.Status != f.Status {
		return false
	}
	if f.AccountID != "" && l.AccountID != f.AccountID {
		return false
	}
	if !f.From.IsZero() && l.CallTime.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !l.CallTime.Before(f.To) {
		return false
	}
	return true
}
