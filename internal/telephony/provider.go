package telephony

import (
	"context"
	"errors"
	"fmt"
)

// OutboundProvider defines the provider-agnostic interface used by the dispatcher.
//
// Rules:
// - No provider HTTP calls outside telephony adapters.
// - A non-2xx answer is a *ProviderError; anything where the outcome of the
//   request is unknown wraps ErrUnavailable.
type OutboundProvider interface {
	Name() string
	HealthCheck(ctx context.Context) error
	PlaceCall(ctx context.Context, req CallRequest) (CallResult, error)
}

// CallRequest carries everything one outbound call needs. Credentials travel
// with the request so adapters never cache settings.
type CallRequest struct {
	APIKey string `json:"-"`
	// Endpoint overrides the adapter's default call URL when set.
	Endpoint string `json:"-"`

	To    string `json:"to"`
	From  string `json:"from,omitempty"`
	Voice string `json:"voice"`

	QualityModel       string `json:"quality_model"`
	MaxDurationSeconds int    `json:"max_duration_seconds"`
	Record             bool   `json:"record"`
	PathwayID          string `json:"pathway_id"`

	// Metadata is echoed back by the provider on the outcome webhook.
	Metadata map[string]string `json:"metadata,omitempty"`
}

type CallResult struct {
	ProviderCallID string `json:"call_id"`
}

// ErrUnavailable marks failures where the provider may or may not have placed the call.
var ErrUnavailable = errors.New("telephony: provider unavailable")

// ProviderError is an explicit rejection by the provider API.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("telephony: provider rejected call (%d): %s", e.StatusCode, e.Message)
}

// IsRejection reports whether err is a *ProviderError.
func IsRejection(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
