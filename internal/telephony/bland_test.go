package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBlandProvider_PlaceCall_Accepted(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/calls" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "key-1" {
			t.Errorf("expected api key in authorization header")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"success","call_id":"c-123"}`))
	}))
	defer srv.Close()

	p := NewBlandProvider(BlandConfig{BaseURL: srv.URL, RatePerSec: 100})
	res, err := p.PlaceCall(context.Background(), CallRequest{
		APIKey:             "key-1",
		To:                 "+12125550100",
		From:               "+13125550100",
		Voice:              "nat",
		QualityModel:       "enhanced",
		MaxDurationSeconds: 300,
		Record:             true,
		PathwayID:          "pw-1",
		Metadata:           map[string]string{MetadataCallLogID: "log-1"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.ProviderCallID != "c-123" {
		t.Fatalf("expected call id, got %q", res.ProviderCallID)
	}
	if got["to"] != "+12125550100" || got["voice"] != "nat" || got["pathway_id"] != "pw-1" {
		t.Fatalf("unexpected body: %v", got)
	}
	if got["wait_for_greeting"] != true || got["amd"] != true || got["record"] != true {
		t.Fatalf("expected fixed flags in body: %v", got)
	}
	if got["max_duration_seconds"].(float64) != 300 || got["quality_model"] != "enhanced" {
		t.Fatalf("unexpected tuning fields: %v", got)
	}
}

func TestBlandProvider_PlaceCall_RejectionCarriesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Invalid phone number"}`))
	}))
	defer srv.Close()

	p := NewBlandProvider(BlandConfig{BaseURL: srv.URL, RatePerSec: 100})
	_, err := p.PlaceCall(context.Background(), CallRequest{APIKey: "k", To: "+1"})
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.StatusCode != http.StatusBadRequest || pe.Message != "Invalid phone number" {
		t.Fatalf("unexpected provider error: %+v", pe)
	}
	if !IsRejection(err) {
		t.Fatalf("expected IsRejection")
	}
}

func TestBlandProvider_PlaceCall_ErrorFieldFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"quota exceeded"}`))
	}))
	defer srv.Close()

	p := NewBlandProvider(BlandConfig{BaseURL: srv.URL, RatePerSec: 100})
	_, err := p.PlaceCall(context.Background(), CallRequest{APIKey: "k"})
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Message != "quota exceeded" {
		t.Fatalf("expected quota rejection, got %v", err)
	}
}

func TestBlandProvider_PlaceCall_NetworkErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := NewBlandProvider(BlandConfig{BaseURL: url, RatePerSec: 100})
	_, err := p.PlaceCall(context.Background(), CallRequest{APIKey: "k"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if IsRejection(err) {
		t.Fatalf("network error must not be a rejection")
	}
}

func TestBlandProvider_PlaceCall_EndpointOverride(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = r.URL.Path == "/custom"
		_, _ = w.Write([]byte(`{"call_id":"x"}`))
	}))
	defer srv.Close()

	p := NewBlandProvider(BlandConfig{BaseURL: "http://unused.invalid", RatePerSec: 100})
	if _, err := p.PlaceCall(context.Background(), CallRequest{APIKey: "k", Endpoint: srv.URL + "/custom"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hit {
		t.Fatalf("expected endpoint override to be used")
	}
}

func TestBlandProvider_PlaceCall_MissingKeyIsRejection(t *testing.T) {
	p := NewBlandProvider(BlandConfig{})
	if _, err := p.PlaceCall(context.Background(), CallRequest{}); !IsRejection(err) {
		t.Fatalf("expected rejection for missing key, got %v", err)
	}
}
