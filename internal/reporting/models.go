package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummary aggregates call logs whose call_time is in [From, To).
type CallsSummary struct {
	Range TimeRange `json:"range"`

	TotalCalls     int `json:"total_calls"`
	CompletedCalls int `json:"completed_calls"`
	NoAnswerCalls  int `json:"no_answer_calls"`
	VoicemailCalls int `json:"voicemail_calls"`
	FailedCalls    int `json:"failed_calls"`

	// PendingCalls are still initiated: the outcome has not arrived yet.
	PendingCalls int `json:"pending_calls"`

	EngagedCalls  int `json:"engaged_calls"`
	RecordedCalls int `json:"recorded_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// ConnectionRate is completed / settled; EngagementRate is engaged / settled.
	ConnectionRate float64 `json:"connection_rate"`
	EngagementRate float64 `json:"engagement_rate"`
}

// VoiceStats is the per-voice breakdown, used to compare personas.
type VoiceStats struct {
	Voice     string `json:"voice"`
	Attempted int    `json:"attempted"`
	Connected int    `json:"connected"`
	Engaged   int    `json:"engaged"`

	EngagementRate float64 `json:"engagement_rate"`
}
