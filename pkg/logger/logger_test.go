package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestNewWithWriter_DebugOnlyInLocal(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "production")
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected debug suppressed in production, got %q", buf.String())
	}

	buf.Reset()
	l = NewWithWriter(&buf, "local")
	l.Debug("shown")
	if buf.Len() == 0 {
		t.Fatalf("expected debug output in local")
	}
}

func TestFrom_FallsBackToDefault(t *testing.T) {
	if From(context.Background()) == nil {
		t.Fatalf("expected default logger")
	}
	l := Discard()
	if From(With(context.Background(), l)) != l {
		t.Fatalf("expected stored logger")
	}
}

func TestCronLogger_ErrorCarriesErr(t *testing.T) {
	var buf bytes.Buffer
	cl := CronLogger(NewWithWriter(&buf, "production"))
	cl.Error(errors.New("boom"), "panic", "job", "tick")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if rec["err"] != "boom" || rec["job"] != "tick" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestMiddleware_SummaryCarriesEnrichedAttrs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(Middleware(NewWithWriter(&buf, "production")))
	r.GET("/x", func(c *gin.Context) {
		Enrich(c, "operator", "op-1")
		if From(c.Request.Context()) != FromGin(c) {
			t.Errorf("request context and gin context disagree on the logger")
		}
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "rid-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected one json line, got %q: %v", buf.String(), err)
	}
	if rec["operator"] != "op-1" || rec["request_id"] != "rid-1" || rec["path"] != "/x" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if w.Header().Get(RequestIDHeader) != "rid-1" {
		t.Fatalf("expected request id echoed")
	}
}
