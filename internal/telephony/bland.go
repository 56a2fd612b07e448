package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBlandBaseURL = "https://api.bland.ai/v1"

	maxErrorBody = 64 << 10
)

type BlandConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
}

// BlandProvider places outbound calls through the Bland AI REST API.
type BlandProvider struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func NewBlandProvider(cfg BlandConfig) *BlandProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBlandBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	burst := int(cfg.RatePerSec)
	if burst < 1 {
		burst = 1
	}
	return &BlandProvider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst),
	}
}

func (p *BlandProvider) Name() string { return "bland" }

func (p *BlandProvider) HealthCheck(ctx context.Context) error {
	if p.baseURL == "" {
		return errors.New("telephony: bland base url is empty")
	}
	return nil
}

type blandCallBody struct {
	PhoneNumber        string            `json:"to"`
	From               string            `json:"from,omitempty"`
	Voice              string            `json:"voice"`
	QualityModel       string            `json:"quality_model"`
	MaxDurationSeconds int               `json:"max_duration_seconds"`
	Record             bool              `json:"record"`
	PathwayID          string            `json:"pathway_id"`
	WaitForGreeting    bool              `json:"wait_for_greeting"`
	AMD                bool              `json:"amd"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

type blandCallResponse struct {
	CallID  string `json:"call_id"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (p *BlandProvider) endpoint(req CallRequest) string {
	if req.Endpoint != "" {
		return req.Endpoint
	}
	return p.baseURL + "/calls"
}

func (p *BlandProvider) PlaceCall(ctx context.Context, req CallRequest) (CallResult, error) {
	if req.APIKey == "" {
		return CallResult{}, &ProviderError{StatusCode: http.StatusUnauthorized, Message: "api key not configured"}
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return CallResult{}, fmt.Errorf("%w: rate limiter: %v", ErrUnavailable, err)
	}

	body, err := json.Marshal(blandCallBody{
		PhoneNumber:        req.To,
		From:               req.From,
		Voice:              req.Voice,
		QualityModel:       req.QualityModel,
		MaxDurationSeconds: req.MaxDurationSeconds,
		Record:             req.Record,
		PathwayID:          req.PathwayID,
		WaitForGreeting:    true,
		AMD:                true,
		Metadata:           req.Metadata,
	})
	if err != nil {
		return CallResult{}, fmt.Errorf("telephony: encode bland request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(req), bytes.NewReader(body))
	if err != nil {
		return CallResult{}, fmt.Errorf("telephony: build bland request: %w", err)
	}
	httpReq.Header.Set("Authorization", req.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return CallResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return CallResult{}, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	var parsed blandCallResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := parsed.Message
		if msg == "" {
			msg = parsed.Error
		}
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return CallResult{}, &ProviderError{StatusCode: resp.StatusCode, Message: msg}
	}
	if parsed.CallID == "" {
		// Accepted but unreadable: the call may be ringing.
		return CallResult{}, fmt.Errorf("%w: response missing call_id", ErrUnavailable)
	}
	return CallResult{ProviderCallID: parsed.CallID}, nil
}
