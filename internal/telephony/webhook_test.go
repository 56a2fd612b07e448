package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"collections-engine/internal/calls"

	"github.com/gin-gonic/gin"
)

func TestOutcomePayload_TerminalStatus(t *testing.T) {
	cases := []struct {
		p    OutcomePayload
		want calls.Status
	}{
		{OutcomePayload{Status: "completed"}, calls.StatusCompleted},
		{OutcomePayload{Status: "completed", AnsweredBy: "voicemail"}, calls.StatusVoicemail},
		{OutcomePayload{Status: "no-answer"}, calls.StatusNoAnswer},
		{OutcomePayload{Status: "busy"}, calls.StatusNoAnswer},
		{OutcomePayload{Status: "failed"}, calls.StatusFailed},
		{OutcomePayload{Status: "completed", ErrorMessage: "carrier error"}, calls.StatusFailed},
	}
	for _, tc := range cases {
		if got := tc.p.TerminalStatus(); got != tc.want {
			t.Fatalf("status for %+v = %s, expected %s", tc.p, got, tc.want)
		}
	}
}

func TestOutcomePayload_ToOutcome(t *testing.T) {
	p, err := ParseOutcomePayload(strings.NewReader(`{
		"call_id":"c-1","status":"completed","call_length":1.5,
		"transferred_to":"+13125550100","recording_url":"https://r/1",
		"end_at":"2025-06-10T15:04:05Z","metadata":{"call_log_id":"log-1"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	o := p.ToOutcome(time.Unix(1700000000, 0).UTC())
	if o.CallLogID != "log-1" || o.ProviderCallID != "c-1" {
		t.Fatalf("unexpected ids: %+v", o)
	}
	if !o.Engaged {
		t.Fatalf("expected transfer to mark engaged")
	}
	if o.DurationSeconds == nil || *o.DurationSeconds != 90 {
		t.Fatalf("expected 90s duration, got %v", o.DurationSeconds)
	}
	if !o.At.Equal(time.Date(2025, 6, 10, 15, 4, 5, 0, time.UTC)) {
		t.Fatalf("expected end_at to set the outcome time, got %v", o.At)
	}
}

func TestParseOutcomePayload_RequiresID(t *testing.T) {
	if _, err := ParseOutcomePayload(strings.NewReader(`{"status":"completed"}`)); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

type fakeApplier struct {
	got []calls.Outcome
	err error
}

func (f *fakeApplier) ApplyOutcome(ctx context.Context, o calls.Outcome) (calls.CallLog, error) {
	f.got = append(f.got, o)
	if f.err != nil {
		return calls.CallLog{}, f.err
	}
	return calls.CallLog{ID: "log-1", Status: o.Status}, nil
}

func newWebhookRouter(h OutcomeWebhookHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/provider/calls", h.HandleCallOutcome)
	return r
}

func TestOutcomeWebhook_RejectsBadSecret(t *testing.T) {
	app := &fakeApplier{}
	r := newWebhookRouter(OutcomeWebhookHandler{Applier: app, Secret: "s3cret"})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider/calls", strings.NewReader(`{"call_id":"c-1"}`))
	req.Header.Set(WebhookSecretHeader, "nope")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if len(app.got) != 0 {
		t.Fatalf("expected applier not called")
	}
}

func TestOutcomeWebhook_AppliesOutcome(t *testing.T) {
	app := &fakeApplier{}
	r := newWebhookRouter(OutcomeWebhookHandler{Applier: app, Secret: "s3cret"})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider/calls", strings.NewReader(`{"call_id":"c-1","status":"no-answer"}`))
	req.Header.Set(WebhookSecretHeader, "s3cret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(app.got) != 1 || app.got[0].Status != calls.StatusNoAnswer {
		t.Fatalf("unexpected applied outcomes: %+v", app.got)
	}
}

func TestOutcomeWebhook_MapsErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{calls.ErrNotFound, http.StatusNotFound},
		{calls.ErrAlreadyTerminal, http.StatusConflict},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r := newWebhookRouter(OutcomeWebhookHandler{Applier: &fakeApplier{err: tc.err}})
		req := httptest.NewRequest(http.MethodPost, "/webhooks/provider/calls", strings.NewReader(`{"call_id":"c-1"}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("err %v: expected %d, got %d", tc.err, tc.want, w.Code)
		}
	}
}

func TestOutcomeWebhook_BadJSON(t *testing.T) {
	r := newWebhookRouter(OutcomeWebhookHandler{Applier: &fakeApplier{}})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/provider/calls", strings.NewReader(`{`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
