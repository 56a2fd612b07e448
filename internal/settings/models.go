package settings

import "time"

// Settings is the provider integration configuration used for every dispatch.
// APIKey and PathwayID are the minimum a dispatch needs.
type Settings struct {
	APIKey    string `json:"api_key" db:"api_key" validate:"required"`
	PathwayID string `json:"pathway_id" db:"pathway_id" validate:"required"`

	// Endpoint overrides the provider's default call URL.
	Endpoint   string `json:"endpoint,omitempty" db:"endpoint" validate:"omitempty,url"`
	FromNumber string `json:"from_number,omitempty" db:"from_number" validate:"omitempty,e164"`

	MaxDurationSeconds int    `json:"max_duration_seconds" db:"max_duration_seconds" validate:"min=1,max=3600"`
	Record             bool   `json:"record" db:"record"`
	Model              string `json:"model" db:"model" validate:"required,oneof=base enhanced turbo"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

const (
	DefaultModel              = "enhanced"
	DefaultMaxDurationSeconds = 300

	maskPrefix = "****"
)

// WithDefaults fills the optional tuning fields.
func (s Settings) WithDefaults() Settings {
	if s.Model == "" {
		s.Model = DefaultModel
	}
	if s.MaxDurationSeconds <= 0 {
		s.MaxDurationSeconds = DefaultMaxDurationSeconds
	}
	return s
}

// Masked hides all but the last four characters of the API key.
func (s Settings) Masked() Settings {
	s.APIKey = MaskKey(s.APIKey)
	return s
}

func MaskKey(k string) string {
	if k == "" {
		return ""
	}
	if len(k) <= 4 {
		return maskPrefix
	}
	return maskPrefix + k[len(k)-4:]
}
